package tools

var target = FlagConfig{Option: "Target", IsPositional: true, Required: true}

// DefaultConfigs returns the built-in invocation of every canonical tool.
func DefaultConfigs() map[ToolName]ToolConfig {
	return map[ToolName]ToolConfig{
		Semgrep: {
			Name:             string(Semgrep),
			Description:      "Semgrep with the registry's auto ruleset",
			Command:          "semgrep",
			Flags:            []FlagConfig{{Flag: "scan"}, {Flag: "--config", Default: "auto"}, {Flag: "--json"}, {Flag: "--quiet"}, target},
			SuccessExitCodes: []int{0, 1},
		},
		Cppcheck: {
			Name:        string(Cppcheck),
			Description: "Cppcheck XML v2 report",
			Command:     "cppcheck",
			Flags:       []FlagConfig{{Flag: "--enable=all"}, {Flag: "--xml"}, {Flag: "--xml-version=2"}, {Flag: "--quiet"}, target},
			Output:      StreamStderr,
		},
		ClangTidy: {
			Name:             string(ClangTidy),
			Description:      "clang-tidy diagnostics without a compilation database",
			Command:          "clang-tidy",
			Flags:            []FlagConfig{{Flag: "--quiet"}},
			FileGlobs:        []string{"*.c", "*.cc", "*.cpp", "*.cxx", "*.h", "*.hh", "*.hpp"},
			SuccessExitCodes: []int{0, 1},
		},
		Flawfinder: {
			Name:        string(Flawfinder),
			Description: "Flawfinder CSV report",
			Command:     "flawfinder",
			Flags:       []FlagConfig{{Flag: "--csv"}, {Flag: "--quiet"}, {Flag: "--dataonly"}, target},
		},
		Bandit: {
			Name:             string(Bandit),
			Description:      "Bandit recursive JSON report",
			Command:          "bandit",
			Flags:            []FlagConfig{{Flag: "-r"}, {Flag: "-f", Default: "json"}, {Flag: "-q"}, target},
			SuccessExitCodes: []int{0, 1},
		},
		ESLint: {
			Name:             string(ESLint),
			Description:      "ESLint JSON formatter",
			Command:          "eslint",
			Flags:            []FlagConfig{{Flag: "-f", Default: "json"}, {Flag: "--no-error-on-unmatched-pattern"}, target},
			SuccessExitCodes: []int{0, 1},
		},
		NpmAudit: {
			Name:             string(NpmAudit),
			Description:      "npm audit JSON report of the uploaded lockfile",
			Command:          "npm",
			Flags:            []FlagConfig{{Flag: "audit"}, {Flag: "--json"}, {Flag: "--package-lock-only"}},
			SuccessExitCodes: []int{0, 1},
		},
		Trivy: {
			Name:        string(Trivy),
			Description: "Trivy filesystem scan",
			Command:     "trivy",
			Flags:       []FlagConfig{{Flag: "fs"}, {Flag: "--format", Default: "json"}, {Flag: "--quiet"}, target},
		},
	}
}
