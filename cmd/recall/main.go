package main

import (
	"fmt"
	"os"
	"strings"
)

const version = "0.3.0"

// Global flags, accepted before or after the command name.
var (
	globalConfigPath string
	globalRoot       string
	globalIndexDir   string
	globalLocator    string
	globalVector     string
	globalProject    string
	globalLogLevel   string
	globalVerbose    bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "search":
		err = runSearch(args[1:])
	case "verbatim":
		err = runVerbatim(args[1:])
	case "history":
		err = runHistory(args[1:])
	case "rules":
		err = runRules(args[1:])
	case "readmes":
		err = runReadmes(args[1:])
	case "techdocs":
		err = runTechDocs(args[1:])
	case "project":
		err = runProject(args[1:])
	case "locate":
		err = runLocate(args[1:])
	case "rebuild":
		err = runRebuild(args[1:])
	case "update":
		err = runUpdate(args[1:])
	case "watch":
		err = runWatch(args[1:])
	case "stats":
		err = runStats(args[1:])
	case "analytics":
		err = runAnalytics(args[1:])
	case "mcp":
		err = runMCP(args[1:])
	case "probe":
		err = runProbe(args[1:])
	case "config":
		err = runConfig(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("recall %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseGlobalFlags strips the global flags from args and records them in
// the global* variables. Everything else is returned in order.
func parseGlobalFlags(args []string) []string {
	targets := map[string]*string{
		"--config":    &globalConfigPath,
		"--root":      &globalRoot,
		"--index":     &globalIndexDir,
		"--locator":   &globalLocator,
		"--vector":    &globalVector,
		"--project":   &globalProject,
		"--log-level": &globalLogLevel,
	}

	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--verbose" {
			globalVerbose = true
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			if dst, known := targets[name]; known {
				*dst = value
				continue
			}
		}
		if dst, known := targets[arg]; known && i+1 < len(args) {
			i++
			*dst = args[i]
			continue
		}
		rest = append(rest, arg)
	}
	return rest
}

func printUsage() {
	fmt.Printf(`recall %s — Hybrid memory retrieval for a local assistant

Usage:
  recall [global flags] <command> [arguments]

Retrieval:
  search <query>          Semantic search with context swap and intent boost
  verbatim <phrase>       Prove a phrase was said, byte for byte
  history                 Most recent interactions, summarised when possible
  rules                   Governance rules by tag and/or semantic query
  readmes <prompt>        README_<topic>.md files whose topic the prompt names
  techdocs <pattern>      Technical manuals matching a file name pattern
  project <pattern>       Project sources and CI/YAML configuration
  locate <pattern>        Physical file paths inside the project root

Maintenance:
  rebuild                 Re-index every memory root
  update <path>           Index or re-index one memory file
  watch                   Index history and persistent files as they change
  stats                   Index and locator health

Analytics:
  analytics search        Interactions by classification
  analytics summary       Counts by subject, action, category and tag
  analytics export        Write classified interactions as JSON or CSV

Other:
  mcp                     Serve the retrieval tools over MCP (stdio)
  probe                   Find a working file-locator executable
  config show             Print the resolved configuration and its sources
  version                 Print version

Search Flags:
  --subject, --action, --category <label>   Detected intent, boosts matching titles
  --rules                 Include semantically related rules
  --json                  Print the raw result envelope

Global Flags:
  --config <file>         Config file (default ~/.recall/config.yaml)
  --root <dir>            Memory root; per-type dirs default beneath it
  --index <dir>           Index directory (default ~/.recall/index)
  --locator <exe>         File-locator executable
  --vector <url>          Vector engine query endpoint
  --project <dir>         Project root for project/locate
  --log-level <level>     debug, info, warn, error, quiet
  --verbose               Same as --log-level debug
  -h, --help              Show this help message
  -v, --version           Print version
`, version)
}
