package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはserve", []string{}, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"help", []string{"help"}, CommandHelp},
		{"-h", []string{"-h"}, CommandHelp},
		{"--help", []string{"--help"}, CommandHelp},
		{"未知のコマンドはserve", []string{"unknown"}, CommandServe},
		{"余分な引数は無視", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestCommand_SupportsStore(t *testing.T) {
	tests := []struct {
		cmd   Command
		store string
		want  bool
	}{
		{CommandWorker, "postgres", true},
		{CommandWorker, "memory", false},
		{CommandWorker, "redis", false},
		{CommandServe, "memory", true},
		{CommandServe, "redis", true},
		{CommandMigrate, "postgres", true},
	}

	for _, tt := range tests {
		if got := tt.cmd.SupportsStore(tt.store); got != tt.want {
			t.Errorf("%s.SupportsStore(%q) = %v, want %v", tt.cmd, tt.store, got, tt.want)
		}
	}
}

func TestPrintUsage_ListsCommandsAndWorkerStore(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	out := buf.String()

	for _, cmd := range []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck, CommandHelp} {
		if !strings.Contains(out, string(cmd)) {
			t.Errorf("usage does not list %q:\n%s", cmd, out)
		}
	}
	if !strings.Contains(out, "SESSION_STORE=postgres") {
		t.Errorf("usage should note that worker needs the postgres store:\n%s", out)
	}
}
