package llm

import (
	"fmt"
	"strings"
)

const unanswerableSentinel = "ERROR: Query cannot be generated based on available data."

type example struct {
	Question string
	SQL      string
}

var sqlExamples = []example{
	{"What is my total sales?", "SELECT SUM(total_sales) FROM total_sales_metrics;"},
	{"Calculate the RoAS (Return on Ad Spend).", "SELECT SUM(ad_sales) * 100.0 / SUM(ad_spend) FROM ad_sales_metrics WHERE ad_spend > 0;"},
	{"Which product had the highest CPC (Cost per click)?", "SELECT item_id, SUM(ad_spend) * 1.0 / SUM(clicks) AS cpc FROM ad_sales_metrics WHERE clicks > 0 GROUP BY item_id ORDER BY cpc DESC LIMIT 1;"},
	{"What was the total ad spend for item 4 on June 1, 2025?", "SELECT ad_spend FROM ad_sales_metrics WHERE item_id = 4 AND date = '2025-06-01';"},
	{"Show me the total units ordered across all products for the entire month of June 2025.", "SELECT SUM(total_units_ordered) FROM total_sales_metrics WHERE date BETWEEN '2025-06-01' AND '2025-06-30';"},
	{"List all products that were not eligible for advertising on 2025-06-04, and also provide their reason.", "SELECT item_id, message FROM product_eligibility WHERE eligibility = FALSE AND STRFTIME('%Y-%m-%d', eligibility_datetime_utc) = '2025-06-04';"},
	{"Find the product with the highest ad sales on June 1, 2025.", "SELECT item_id FROM ad_sales_metrics WHERE date = '2025-06-01' ORDER BY ad_sales DESC LIMIT 1;"},
	{"How many products were eligible on June 4, 2025?", "SELECT COUNT(DISTINCT item_id) FROM product_eligibility WHERE eligibility = TRUE AND STRFTIME('%Y-%m-%d', eligibility_datetime_utc) = '2025-06-04';"},
}

const sqlSystemPrompt = `You are an expert SQLite analyst for an e-commerce platform. Convert natural language questions into a single, syntactically correct SQLite query.`

const sqlGuidelines = `**Guidelines:**

* Output ONLY the raw SQL query. No explanations, comments, markdown fences or prefixes such as "SQL:".
* The query must start with SELECT (or WITH) and must not modify data.
* Table and column names are case-sensitive as listed above.
* ` + "`date`" + ` columns hold 'YYYY-MM-DD' text; compare them directly (e.g. date = '2025-06-01').
* ` + "`eligibility_datetime_utc`" + ` holds 'YYYY-MM-DD HH:MM:SS' text; use STRFTIME('%Y-%m-%d', eligibility_datetime_utc) for date-only comparisons.
* Use DATE('now') for the current date.
* Use TRUE and FALSE for the eligibility column.
* Use SUM(), AVG(), COUNT(), MAX(), MIN() for summaries.
* If the question cannot be answered unambiguously with this schema, output exactly: ` + unanswerableSentinel

func buildSQLPrompt(schema, question string) string {
	var b strings.Builder
	b.WriteString("**Database Schema:**\n\n")
	b.WriteString(schema)
	b.WriteString("\n")
	b.WriteString(sqlGuidelines)
	b.WriteString("\n\n**Examples:**\n\n")
	for _, ex := range sqlExamples {
		fmt.Fprintf(&b, "Question: %s\nSQL: %s\n\n", ex.Question, ex.SQL)
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Question: %s\nSQL:", question)
	return b.String()
}

const humanizeSystemPrompt = `You are an e-commerce data assistant. Answer the user's question in clear, concise, natural language.`

func buildHumanizePrompt(question, sql, resultText string) string {
	return fmt.Sprintf(`Here is the user question:
%s

Here is the SQL query used:
%s

Here is the result of the query:
%s

Answer the original question in one simple, natural sentence.`, question, sql, resultText)
}
