package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	flag "github.com/spf13/pflag"

	mdxport "github.com/alnah/go-mdxport"
	"github.com/alnah/go-mdxport/internal/config"
	"github.com/alnah/go-mdxport/internal/fileutil"
	"github.com/alnah/go-mdxport/internal/hints"
	"github.com/alnah/go-mdxport/internal/logger"
)

// checkStatus grades one doctor check. Only checkError fails the command.
type checkStatus string

const (
	checkOK    checkStatus = "ok"
	checkWarn  checkStatus = "warn"
	checkError checkStatus = "error"
)

// Pandoc releases before 2.11 lack the Lua API the equation filter uses.
var minPandocVersion = [2]int{2, 11}

type doctorCheck struct {
	Name   string      `json:"name"`
	Status checkStatus `json:"status"`
	Detail string      `json:"detail"`
}

type doctorReport struct {
	Platform string        `json:"platform"`
	Status   checkStatus   `json:"status"`
	Checks   []doctorCheck `json:"checks"`
}

func (r *doctorReport) add(name string, status checkStatus, format string, args ...any) {
	r.Checks = append(r.Checks, doctorCheck{Name: name, Status: status, Detail: fmt.Sprintf(format, args...)})
	if status == checkError || (status == checkWarn && r.Status == checkOK) {
		r.Status = status
	}
}

// runDoctorCmd checks what an import with the same config and environment
// would need, and returns the exit code.
func runDoctorCmd(args []string, env *Environment) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var configName string
	var jsonOutput, help bool
	fs.StringVarP(&configName, "config", "c", "", "config file name or path")
	fs.BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	fs.BoolVarP(&help, "help", "h", false, "show help")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(env.Stderr, describeError(fmt.Errorf("%w: %v", ErrUsage, err)))
		return ExitSetup
	}
	if help {
		printDoctorUsage(env.Stdout)
		return ExitSuccess
	}

	report := runDoctor(configName)
	if jsonOutput {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		printDoctorReport(env.Stdout, report)
	}

	if report.Status == checkError {
		return ExitSetup
	}
	return ExitSuccess
}

func runDoctor(configName string) *doctorReport {
	r := &doctorReport{Platform: runtime.GOOS + "/" + runtime.GOARCH, Status: checkOK}

	envCfg := loadEnvConfig()
	cfg, err := loadConfig(configName, envCfg)
	if err != nil {
		r.add("config", checkError, "%v", err)
		cfg = config.DefaultConfig()
	} else {
		applyEnvConfig(envCfg, cfg)
		if err := cfg.Validate(); err != nil {
			r.add("config", checkError, "%v", err)
		} else {
			r.add("config", checkOK, "%s", configSource(configName, envCfg))
		}
	}

	if unknown := unknownEnvVars(); len(unknown) > 0 {
		r.add("env", checkWarn, "unknown variables (typo?): %s", strings.Join(unknown, ", "))
	}
	checkSetup(r, cfg)
	checkPandoc(r, cfg.Pandoc.Binary)
	checkChrome(r)
	checkNotion(r, cfg)
	checkTempDir(r)
	return r
}

func configSource(name string, env *envConfig) string {
	switch {
	case name != "":
		return name
	case env.ConfigPath != "":
		return env.ConfigPath + " (MDXPORT_CONFIG)"
	}
	return "defaults"
}

// checkSetup builds a converter, which loads the mapping table, the filter
// and the proof style the config names.
func checkSetup(r *doctorReport, cfg *config.Config) {
	conv, err := mdxport.NewConverter(converterOptions(cfg, logger.NewNop(), time.Now)...)
	if err != nil {
		r.add("assets", checkError, "%s", strings.TrimPrefix(describeError(err), "error: "))
		return
	}
	_ = conv.Close()
	detail := "embedded"
	if cfg.Assets.BasePath != "" {
		detail = cfg.Assets.BasePath + " over embedded"
	}
	r.add("assets", checkOK, "%s", detail)
}

func checkPandoc(r *doctorReport, bin string) {
	if bin == "" {
		bin = mdxport.DefaultPandocBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		r.add("pandoc", checkError, "not found (%s)%s", bin, hints.ForPandocNotFound())
		return
	}

	out, err := exec.Command(path, "--version").Output() // #nosec G204 -- configured pandoc
	if err != nil {
		r.add("pandoc", checkWarn, "%s: cannot read version: %v", path, err)
		return
	}
	first, _, _ := strings.Cut(string(out), "\n")
	version := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(first), "pandoc"))
	if !pandocAtLeast(version, minPandocVersion) {
		r.add("pandoc", checkError, "%s is %s, need %d.%d or later",
			path, version, minPandocVersion[0], minPandocVersion[1])
		return
	}
	r.add("pandoc", checkOK, "%s (%s)", path, version)
}

// pandocAtLeast compares the first two numbers of a version such as
// "3.1.11.1". An unparsable version passes.
func pandocAtLeast(version string, min [2]int) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return true
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(strings.TrimRight(parts[1], "-+~abcdefghijklmnopqrstuvwxyz"))
	if err1 != nil || err2 != nil {
		return true
	}
	return major > min[0] || (major == min[0] && minor >= min[1])
}

// checkChrome only warns: Chrome is needed for --proof-pdf alone.
func checkChrome(r *doctorReport) {
	path := os.Getenv("ROD_BROWSER_BIN")
	if path == "" {
		var found bool
		if path, found = launcher.LookPath(); !found {
			r.add("chrome", checkWarn, "not found; --proof-pdf is unavailable (install Chrome or set ROD_BROWSER_BIN)")
			return
		}
	}
	if !fileutil.FileExists(path) {
		r.add("chrome", checkWarn, "ROD_BROWSER_BIN points at a missing file: %s", path)
		return
	}

	sandboxed := (hints.InCI() || hints.IsInContainer()) && os.Getenv("ROD_NO_SANDBOX") != "1"
	if sandboxed {
		r.add("chrome", checkWarn, "%s; container or CI detected, set ROD_NO_SANDBOX=1 for PDF proofs", path)
		return
	}
	r.add("chrome", checkOK, "%s", path)
}

func checkNotion(r *doctorReport, cfg *config.Config) {
	if notionToken(cfg) == "" {
		r.add("notion", checkWarn, "no token; notion:<page-id> inputs need --notion-token or %s", mdxport.NotionTokenEnv)
		return
	}
	r.add("notion", checkOK, "token set")
}

// checkTempDir covers pandoc's staged input and downloaded Notion media.
func checkTempDir(r *doctorReport) {
	_, cleanup, err := fileutil.WriteTempFile("doctor", "txt")
	if err != nil {
		r.add("temp", checkError, "%s not writable: %v", os.TempDir(), err)
		return
	}
	cleanup()
	r.add("temp", checkOK, "%s writable", os.TempDir())
}

func printDoctorReport(w io.Writer, r *doctorReport) {
	fmt.Fprintf(w, "mdxport doctor (%s)\n\n", r.Platform)
	for _, c := range r.Checks {
		fmt.Fprintf(w, "  %-7s %-7s %s\n", statusLabel(c.Status), c.Name, c.Detail)
	}
	fmt.Fprintln(w)

	switch r.Status {
	case checkOK:
		fmt.Fprintln(w, "Status: Ready to import")
	case checkWarn:
		fmt.Fprintln(w, "Status: Ready with warnings")
	default:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}

func statusLabel(s checkStatus) string {
	switch s {
	case checkOK:
		return "[OK]"
	case checkWarn:
		return "[WARN]"
	}
	return "[ERROR]"
}
