package pipeline

import (
	"fmt"
	"strings"

	"github.com/dvloznov/aperture/internal/domain"
	"github.com/dvloznov/aperture/internal/rules"
)

// SystemPrompt frames the model as a family-office analyst.
const SystemPrompt = "You are a financial analyst for a family office. You review accounts, " +
	"transactions and investment holdings and produce specific, actionable insights.\n\n" +
	"Focus areas:\n" +
	"- Risk: concentration in single positions or asset types, liquidity, data quality.\n" +
	"- Opportunity: rebalancing, diversification, idle cash, tax efficiency.\n" +
	"- Action: concrete next steps the client should take.\n" +
	"- Alert: issues that need attention now.\n\n" +
	"Every insight must cite concrete figures from the data (amounts, percentages, counts).\n" +
	"Each description is two sentences: the finding with its numbers, then why it matters and how urgent it is.\n"

const outputInstructions = "Respond with a single JSON object and nothing else. " +
	"Do NOT wrap the response in code fences. The object must have this shape:\n" +
	"{\n" +
	"  \"insights\": [\n" +
	"    {\n" +
	"      \"title\": \"short title\",\n" +
	"      \"insight_type\": \"%s\",\n" +
	"      \"description\": \"finding with figures. impact and urgency.\",\n" +
	"      \"impact\": \"%s\",\n" +
	"      \"confidence\": \"%s\",\n" +
	"      \"recommendation\": \"specific next step\",\n" +
	"      \"supporting_data\": [\"data point\", \"data point\"],\n" +
	"      \"priority\": 1\n" +
	"    }\n" +
	"  ],\n" +
	"  \"summary\": \"executive summary\",\n" +
	"  \"total_insights\": 5\n" +
	"}\n" +
	"Order insights from most to least important; priority is a positive integer where 1 is highest.\n"

// BuildPromptTemplate returns the instruction text sent ahead of the record.
// dataSource is the source name of the run key.
func BuildPromptTemplate(dataSource string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Analyze the following %s and generate exactly 5 insights, combining related findings.\n\n", describeSource(dataSource)))
	b.WriteString(fmt.Sprintf(outputInstructions,
		joinEnum(domain.InsightTypes), joinEnum(domain.Levels), joinEnum(domain.Levels)))
	return b.String()
}

// AppendFindings adds the rule findings to a prompt template. The findings
// are computed exactly and the model is told to rely on them.
func AppendFindings(promptTemplate string, findings []rules.Finding) string {
	if len(findings) == 0 {
		return promptTemplate
	}
	var b strings.Builder
	b.WriteString(promptTemplate)
	b.WriteString("\nPre-computed findings (exact, use these figures as given):\n")
	for _, f := range findings {
		b.WriteString(fmt.Sprintf("- [%s] %s (%s): %s\n", strings.ToUpper(string(f.Severity)), f.Type, f.Subject, f.Detail))
	}
	return b.String()
}

func describeSource(source string) string {
	switch source {
	case "mock":
		return "mock financial data (test dataset)"
	case "plaid":
		return "financial data from the Plaid sandbox"
	default:
		return "financial data"
	}
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, "|")
}
