package output

import (
	"bytes"
	"errors"
	"testing"

	"autoshard/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPrinter_PlainTextForBuffers(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	entry := models.PlanEntry{Table: "orders", ConstraintName: "fk", DropStatement: "ALTER TABLE orders DROP FOREIGN KEY fk"}

	p.NoConstraints("payments")
	p.Listing(entry)
	p.Executing(entry)
	p.Done(entry)
	p.Failed(entry, errors.New("permission denied"))
	p.IntrospectionFailed("carts", errors.New("timeout"))

	want := "No constraints defined for payments.\n" +
		"ALTER TABLE orders DROP FOREIGN KEY fk\n" +
		"Executing ALTER TABLE orders DROP FOREIGN KEY fk\n" +
		"Done.\n\n" +
		"Failed [permission denied].\n\n" +
		"Could not read constraints for carts [timeout].\n"
	assert.Equal(t, want, buf.String())
}

func TestPrinter_Summary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Summary([]models.ExecutionReport{
		{
			Database: "default",
			Entries: []models.ReportEntry{
				{Status: models.StatusSucceeded},
				{Status: models.StatusFailed},
			},
			EmptyTables:           []string{"a", "b"},
			IntrospectionFailures: []models.TableFailure{{Table: "c"}},
		},
	})

	assert.Equal(t, "default: 1 dropped, 1 failed, 0 listed, 2 tables without constraints, 1 tables unreadable\n", buf.String())
}
