package console

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"chainreport/internal/domain"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	unresolvedCell = "UNRESOLVED"
	absentCell     = "-"
)

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle       = lipgloss.NewStyle().Padding(0, 1)
	numericStyle    = cellStyle.Align(lipgloss.Right)
	unresolvedStyle = cellStyle.Foreground(lipgloss.Color("9"))
)

var headers = []string{"RANK", "DISPLAY NAME", "ADDRESS", "BALANCE"}

// Presenter prints a report as a table.
type Presenter struct {
	out io.Writer
}

func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out}
}

func (p *Presenter) Present(ctx context.Context, report domain.Report) error {
	if _, err := fmt.Fprintln(p.out, Render(report)); err != nil {
		return fmt.Errorf("print report: %w", err)
	}
	return nil
}

// Render lays the rows out in report order. Unresolved fields are printed
// as UNRESOLVED, never as a zero or empty value.
func Render(report domain.Report) string {
	rows := make([][]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		rows = append(rows, []string{
			strconv.Itoa(row.Rank),
			nameCell(row.DisplayName),
			row.Address,
			balanceCell(row.Balance),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(r, c int) lipgloss.Style {
			if r == table.HeaderRow {
				return headerStyle
			}
			if rows[r][c] == unresolvedCell {
				return unresolvedStyle
			}
			if c == 0 || c == 3 {
				return numericStyle
			}
			return cellStyle
		})
	return t.String()
}

func nameCell(field domain.NameField) string {
	switch field.State {
	case domain.FieldResolved:
		return field.Value
	case domain.FieldUnresolved:
		return unresolvedCell
	default:
		return absentCell
	}
}

func balanceCell(field domain.BalanceField) string {
	if field.State != domain.FieldResolved || field.Total == nil {
		return unresolvedCell
	}
	return field.Total.String()
}
