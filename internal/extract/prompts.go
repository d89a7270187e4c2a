package extract

import (
	"strings"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// buildPrompt assembles the extraction instructions for one chunk. The
// contract is deliberately rigid: a bare JSON array, fixed fields, explicit
// sign convention per document kind. Anything else is rejected wholesale.
func buildPrompt(class domain.DocumentClassification, currency string) string {
	var b strings.Builder

	b.WriteString("You are a financial statement parser for Brazilian bank and credit-card documents.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Parse ALL transactions in the text below.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a JSON array of objects.\n\n")
	b.WriteString("Each object must have these fields:\n")
	b.WriteString("- \"date\": string, ISO format \"YYYY-MM-DD\"\n")
	b.WriteString("- \"description\": string (merchant or transaction description)\n")
	b.WriteString("- \"amount\": number, signed per the convention below\n")
	b.WriteString("- \"currency\": string (e.g. \"" + currency + "\")\n")
	b.WriteString("- \"category\": string or null\n")
	b.WriteString("- \"installment\": {\"number\": int, \"total\": int} or null\n")
	b.WriteString("- \"confidence\": number between 0 and 1\n\n")

	b.WriteString("Sign convention:\n")
	if class.Kind == domain.KindCreditCardStatement {
		b.WriteString("- This is a CREDIT CARD statement: a purchase is POSITIVE (the card balance grows),\n")
		b.WriteString("  a payment or refund is NEGATIVE (the balance shrinks).\n\n")
	} else {
		b.WriteString("- This is a BANK ACCOUNT statement: money OUT (debit) is NEGATIVE,\n")
		b.WriteString("  money IN (credit) is POSITIVE.\n\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("- Dates printed as DD/MM belong to the statement period; resolve the year from context.\n")
	b.WriteString("- Amounts use Brazilian formatting (1.234,56); output plain JSON numbers.\n")
	b.WriteString("- Skip subtotal, balance and header lines; only real transactions.\n")
	b.WriteString("- An installment marker like \"PARC 3/6\" fills the installment field.\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Do NOT use ```json or any Markdown.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")

	return b.String()
}
