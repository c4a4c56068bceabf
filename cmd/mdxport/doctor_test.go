package main

// Tests that set environment variables cannot use t.Parallel().

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func findCheck(r doctorReport, name string) (doctorCheck, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return doctorCheck{}, false
}

func TestRunDoctorCmd_PandocMissing(t *testing.T) {
	t.Setenv("MDXPORT_PANDOC", filepath.Join(t.TempDir(), "no-pandoc"))
	t.Setenv("MDXPORT_CONFIG", "")
	t.Setenv("NOTION_TOKEN", "")

	var stdout bytes.Buffer
	env := &Environment{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	if code := runDoctorCmd(nil, env); code != ExitSetup {
		t.Errorf("runDoctorCmd() = %d, want %d", code, ExitSetup)
	}

	out := stdout.String()
	for _, want := range []string{"mdxport doctor (" + runtime.GOOS, "[ERROR] pandoc", "no-pandoc", "[WARN]  notion", "Status: Not ready"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestRunDoctorCmd_JSONOutput(t *testing.T) {
	t.Setenv("MDXPORT_PANDOC", filepath.Join(t.TempDir(), "no-pandoc"))
	t.Setenv("MDXPORT_CONFIG", "")
	t.Setenv("NOTION_TOKEN", "secret_abc")

	var stdout bytes.Buffer
	env := &Environment{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	runDoctorCmd([]string{"--json"}, env)

	var report doctorReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout.String())
	}
	if report.Status != checkError {
		t.Errorf("status = %q, want error", report.Status)
	}
	if report.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("platform = %q", report.Platform)
	}

	wantStatus := map[string]checkStatus{
		"config": checkOK,
		"assets": checkOK,
		"pandoc": checkError,
		"notion": checkOK,
		"temp":   checkOK,
	}
	for name, want := range wantStatus {
		c, ok := findCheck(report, name)
		if !ok {
			t.Errorf("check %q missing", name)
			continue
		}
		if c.Status != want {
			t.Errorf("check %q = %q (%s), want %q", name, c.Status, c.Detail, want)
		}
	}
}

func TestRunDoctorCmd_BadConfig(t *testing.T) {
	t.Setenv("MDXPORT_CONFIG", "")
	t.Setenv("MDXPORT_PANDOC", "")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	writeFile(t, cfgPath, "mappings:\n  table: no-such-table\n")

	var stdout bytes.Buffer
	env := &Environment{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	if code := runDoctorCmd([]string{"--json", "-c", cfgPath}, env); code != ExitSetup {
		t.Errorf("runDoctorCmd() = %d, want %d", code, ExitSetup)
	}

	var report doctorReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if c, _ := findCheck(report, "assets"); c.Status != checkError || !strings.Contains(c.Detail, "no-such-table") {
		t.Errorf("assets check = %+v, want an error naming the table", c)
	}
}

func TestRunDoctorCmd_Help(t *testing.T) {
	var stdout bytes.Buffer
	env := &Environment{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	if code := runDoctorCmd([]string{"--help"}, env); code != ExitSuccess {
		t.Errorf("runDoctorCmd(--help) = %d", code)
	}
	if !strings.Contains(stdout.String(), "Usage: mdxport doctor") {
		t.Errorf("stdout = %q", stdout.String())
	}

	var stderr bytes.Buffer
	env.Stderr = &stderr
	if code := runDoctorCmd([]string{"--bogus"}, env); code != ExitSetup || !strings.Contains(stderr.String(), "invalid arguments") {
		t.Errorf("runDoctorCmd(--bogus) = %d, stderr %q", code, stderr.String())
	}
}

func TestPandocAtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version string
		want    bool
	}{
		{"3.1.11.1", true},
		{"2.11", true},
		{"2.9.2.1", false},
		{"1.19", false},
		{"2.19~rc1", true},
		{"unknown", true},
	}
	for _, tt := range tests {
		if got := pandocAtLeast(tt.version, minPandocVersion); got != tt.want {
			t.Errorf("pandocAtLeast(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestRunDoctor_UnknownEnv(t *testing.T) {
	t.Setenv("MDXPORT_CONFIG", "")
	t.Setenv("MDXPORT_PANDOCC", "typo")

	report := runDoctor("")
	c, ok := findCheck(*report, "env")
	if !ok || c.Status != checkWarn || !strings.Contains(c.Detail, "MDXPORT_PANDOCC") {
		t.Errorf("env check = %+v, %v", c, ok)
	}
}
