package loans

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"
)

// WriteStatementPDF renders a statement for the loan under dir and
// returns the file path.
func WriteStatementPDF(loan *Loan, workerName, dir string) (string, error) {
	if dir == "" {
		dir = "storage/statements"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	filePath := filepath.Join(dir, loan.ID+".pdf")

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Loan Statement")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Worker: %s", workerName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Reference: %s (%s)", loan.LoanID, loan.Category))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Issued: %s", loan.LoanDate.Format("2006-01-02")))
	pdf.Ln(10)
	pdf.Cell(0, 8, fmt.Sprintf("Principal: %s %s", loan.PrincipalAmount.StringFixed(2), loan.Currency))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Interest rate: %s%%", loan.InterestRate.String()))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Total: %s %s", loan.TotalAmount.StringFixed(2), loan.Currency))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Paid: %s %s", loan.TotalPaidAmount.StringFixed(2), loan.Currency))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Remaining: %s %s", loan.RemainingAmount.StringFixed(2), loan.Currency))
	pdf.Ln(10)

	if len(loan.Installments) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(15, 8, "#", "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 8, "Due", "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 8, "Amount", "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, "Paid", "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 8, "Status", "1", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		for _, installment := range loan.Installments {
			pdf.CellFormat(15, 8, fmt.Sprintf("%d", installment.Number), "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 8, installment.DueDate.Format("2006-01-02"), "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 8, installment.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
			pdf.CellFormat(35, 8, installment.PaidAmount.StringFixed(2), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 8, installment.Status, "1", 1, "C", false, 0, "")
		}
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", err
	}
	return filePath, nil
}
