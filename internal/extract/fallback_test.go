package extract

import (
	"context"
	"testing"
	"time"

	"github.com/avcarvalho/statement-ingest/internal/chunker"
	"github.com/avcarvalho/statement-ingest/internal/domain"
)

func patternExtract(t *testing.T, text string, kind domain.DocumentKind) []domain.Transaction {
	t.Helper()
	p := NewPatternExtractor("BRL")
	p.now = func() time.Time { return time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC) }
	txs, err := p.ExtractChunk(context.Background(), chunker.Chunk{Text: text}, domain.DocumentClassification{Kind: kind})
	if err != nil {
		t.Fatalf("ExtractChunk: %v", err)
	}
	return txs
}

func TestBankStatementSignConvention(t *testing.T) {
	text := `12/05 COMPRA SUPERMERCADO PAGUE MENOS 230,00 D
13/05 PIX RECEBIDO JOAO 250,00 C`

	txs := patternExtract(t, text, domain.KindBankStatement)
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
	if txs[0].Amount != -230.00 {
		t.Errorf("debit amount = %v, want -230.00", txs[0].Amount)
	}
	if txs[1].Amount != 250.00 {
		t.Errorf("credit amount = %v, want 250.00", txs[1].Amount)
	}
}

func TestCreditCardSignConvention(t *testing.T) {
	// Opposite convention from bank statements: a purchase grows the card
	// balance (positive), a payment shrinks it (negative).
	text := `12/05 IFOOD RESTAURANTE 89,90
20/05 PAGAMENTO RECEBIDO 500,00`

	txs := patternExtract(t, text, domain.KindCreditCardStatement)
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
	if txs[0].Amount != 89.90 {
		t.Errorf("purchase amount = %v, want 89.90", txs[0].Amount)
	}
	if txs[1].Amount != -500.00 {
		t.Errorf("payment amount = %v, want -500.00", txs[1].Amount)
	}
}

func TestSameEventOppositeSigns(t *testing.T) {
	line := "12/05 COMPRA LOJAS AMERICANAS 120,00"

	bank := patternExtract(t, line, domain.KindBankStatement)
	card := patternExtract(t, line, domain.KindCreditCardStatement)
	if len(bank) != 1 || len(card) != 1 {
		t.Fatal("expected one transaction from each path")
	}
	if bank[0].Amount != -120.00 {
		t.Errorf("bank amount = %v, want -120.00", bank[0].Amount)
	}
	if card[0].Amount != 120.00 {
		t.Errorf("card amount = %v, want 120.00", card[0].Amount)
	}
}

func TestPatternExtractorParsesInstallmentMarker(t *testing.T) {
	txs := patternExtract(t, "12/05 LOJAS AMERICANAS PARC 3/6 120,00", domain.KindCreditCardStatement)
	if len(txs) != 1 {
		t.Fatalf("got %d transactions", len(txs))
	}
	inst := txs[0].Installment
	if inst == nil || inst.Number != 3 || inst.Total != 6 {
		t.Errorf("installment = %+v, want 3/6", inst)
	}
}

func TestPatternExtractorCategorizes(t *testing.T) {
	txs := patternExtract(t, "12/05 UBER TRIP SAO PAULO 24,90", domain.KindCreditCardStatement)
	if len(txs) != 1 {
		t.Fatalf("got %d transactions", len(txs))
	}
	if txs[0].Category != "Transporte" {
		t.Errorf("category = %q, want Transporte", txs[0].Category)
	}
}

func TestPatternExtractorSkipsNonTransactionLines(t *testing.T) {
	text := `FATURA DE MAIO
Limite de crédito R$ 5.000,00
12/05 NETFLIX.COM 39,90
Total da fatura 39,90`

	txs := patternExtract(t, text, domain.KindCreditCardStatement)
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1: %+v", len(txs), txs)
	}
	if txs[0].Description != "NETFLIX.COM" {
		t.Errorf("description = %q", txs[0].Description)
	}
	if txs[0].Source != domain.SourcePattern {
		t.Errorf("source = %q", txs[0].Source)
	}
	if txs[0].Confidence != 0.95 {
		t.Errorf("confidence = %v", txs[0].Confidence)
	}
}

func TestPatternExtractorResolvesYearFromReference(t *testing.T) {
	txs := patternExtract(t, "12/05 PADARIA DO BAIRRO 9,50", domain.KindCreditCardStatement)
	if len(txs) != 1 {
		t.Fatal("expected one transaction")
	}
	want := time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC)
	if !txs[0].Date.Equal(want) {
		t.Errorf("date = %v, want %v", txs[0].Date, want)
	}
}

func TestPatternExtractorExplicitYear(t *testing.T) {
	txs := patternExtract(t, "12/05/2023 POSTO IPIRANGA 150,00", domain.KindCreditCardStatement)
	if len(txs) != 1 {
		t.Fatal("expected one transaction")
	}
	if txs[0].Date.Year() != 2023 {
		t.Errorf("year = %d, want 2023", txs[0].Date.Year())
	}
}

func TestPatternExtractorTrailingMinus(t *testing.T) {
	txs := patternExtract(t, "20/05 ESTORNO COMPRA 75,00-", domain.KindCreditCardStatement)
	if len(txs) != 1 {
		t.Fatal("expected one transaction")
	}
	if txs[0].Amount != -75.00 {
		t.Errorf("amount = %v, want -75.00", txs[0].Amount)
	}
}
