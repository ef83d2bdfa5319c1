package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []string
		wantErr bool
	}{
		{name: "plain", line: "confirm r1 --actor alice", want: []string{"confirm", "r1", "--actor", "alice"}},
		{name: "double quotes", line: `propose band hall "2025-03-04 18:00" "2025-03-04 20:00"`, want: []string{"propose", "band", "hall", "2025-03-04 18:00", "2025-03-04 20:00"}},
		{name: "single quotes", line: "seed 'my seed.yaml'", want: []string{"seed", "my seed.yaml"}},
		{name: "empty quotes", line: `cancel "" --actor alice`, want: []string{"cancel", "", "--actor", "alice"}},
		{name: "extra spaces", line: "  viewAttendance   r1  ", want: []string{"viewAttendance", "r1"}},
		{name: "unclosed quote", line: `seed "file.yaml`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommandLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newEchoCmd(calls *[]string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "echo <word>",
		Short: "Echo a word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upper, _ := cmd.Flags().GetBool("upper")
			word := args[0]
			if upper {
				word = strings.ToUpper(word)
			}
			if word == "fail" {
				return errors.New("boom")
			}
			*calls = append(*calls, word)
			return nil
		},
	}
	cmd.Flags().Bool("upper", false, "Upper-case the word")
	return cmd
}

func TestRunSession(t *testing.T) {
	var calls []string
	commands := map[string]*cobra.Command{"echo": newEchoCmd(&calls)}

	input := strings.Join([]string{
		"echo hello --upper",
		"echo again",
		"",
		"echo",
		"echo fail",
		"unknown",
		"help",
		"exit",
		"echo never",
	}, "\n")

	var out bytes.Buffer
	err := runSession(strings.NewReader(input), &out, commands)
	require.NoError(t, err)

	// flags are reset between commands
	assert.Equal(t, []string{"HELLO", "again"}, calls)

	text := out.String()
	assert.Contains(t, text, "accepts 1 arg(s)")
	assert.Contains(t, text, "❌ Error: boom")
	assert.Contains(t, text, "Unknown command: unknown")
	assert.Contains(t, text, "Echo a word")
	assert.Contains(t, text, "Goodbye")
}

func TestRunSession_EOF(t *testing.T) {
	var calls []string
	commands := map[string]*cobra.Command{"echo": newEchoCmd(&calls)}

	var out bytes.Buffer
	require.NoError(t, runSession(strings.NewReader("echo one"), &out, commands))
	assert.Equal(t, []string{"one"}, calls)
}

func TestRunCommand_RequiredFlag(t *testing.T) {
	ran := false
	cmd := &cobra.Command{
		Use:  "confirm <id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ran = true
			return nil
		},
	}
	cmd.Flags().String("actor", "", "")
	require.NoError(t, cmd.MarkFlagRequired("actor"))

	err := runCommand(cmd, []string{"r1"})
	require.Error(t, err)
	assert.False(t, ran)

	require.NoError(t, runCommand(cmd, []string{"r1", "--actor", "alice"}))
	assert.True(t, ran)
}

func TestSiblingCommands(t *testing.T) {
	root := &cobra.Command{Use: "rehearsal"}
	app := &AppContext{}
	interactive := InteractiveCmd(app)
	root.AddCommand(interactive, SeedCmd(app), CancelCmd(app))

	commands := siblingCommands(interactive)
	assert.Len(t, commands, 2)
	assert.Contains(t, commands, "seed")
	assert.Contains(t, commands, "cancel")
	assert.NotContains(t, commands, "interactive")
}
