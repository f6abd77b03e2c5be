package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticket-workflow/internal/model"
)

func TestProcessOptions_Defaults(t *testing.T) {
	opts, err := processOptions("", nil, false, false)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultOptions(), opts)
}

func TestProcessOptions_Flags(t *testing.T) {
	opts, err := processOptions("technical", []string{"extraction", "routing"}, true, true)
	require.NoError(t, err)
	assert.Equal(t, model.ToneTechnical, opts.Tone)
	assert.True(t, opts.SkipExtraction)
	assert.True(t, opts.SkipRouting)
	assert.False(t, opts.SkipClassification)
	assert.False(t, opts.SkipResponse)
	assert.False(t, opts.EnableDuplicateDetection)
	assert.False(t, opts.EnableParallel)
}

func TestProcessOptions_Invalid(t *testing.T) {
	_, err := processOptions("sarcastic", nil, false, false)
	assert.Error(t, err)

	_, err = processOptions("", []string{"validation"}, false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestTicketFlags_FlagsOnly(t *testing.T) {
	tf := ticketFlags{subject: "Cannot login", body: "help", email: "casey@example.com"}

	ticket, err := tf.ticket(nil)
	require.NoError(t, err)
	assert.Equal(t, "Cannot login", ticket.Subject)
	assert.Equal(t, "help", ticket.Body)
	assert.Equal(t, "casey@example.com", ticket.CustomerEmail)
}

func TestTicketFlags_FileWithOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticket.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"T-1","subject":"From file","body":"file body","customer_id":"c-1"}`), 0o600))

	tf := ticketFlags{file: path, subject: "Override"}
	ticket, err := tf.ticket(nil)
	require.NoError(t, err)
	assert.Equal(t, "T-1", ticket.ID)
	assert.Equal(t, "Override", ticket.Subject)
	assert.Equal(t, "file body", ticket.Body)
	assert.Equal(t, "c-1", ticket.CustomerID)
}

func TestTicketFlags_Stdin(t *testing.T) {
	tf := ticketFlags{file: "-"}
	ticket, err := tf.ticket(strings.NewReader(`{"subject":"stdin","body":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, "stdin", ticket.Subject)
}

func TestTicketFlags_BadFile(t *testing.T) {
	tf := ticketFlags{file: filepath.Join(t.TempDir(), "missing.json")}
	_, err := tf.ticket(nil)
	assert.Error(t, err)

	tf = ticketFlags{file: "-"}
	_, err = tf.ticket(strings.NewReader("{"))
	assert.Error(t, err)
}
