package compiler

import (
	"regexp"
	"strings"

	"github.com/plugincraft/forge/pkg/shared/types"
)

var (
	errorLinePattern    = regexp.MustCompile(`(?m)^\[ERROR\]\s+([^\s:]+\.java):\[?(\d+)(?:[:,](\d+))?\]?\s*(.*)$`)
	dependencyFailure   = regexp.MustCompile(`Failed to execute goal[^\n]*\bdependency\b`)
	mavenPluginFailure  = regexp.MustCompile(`Failed to execute goal[^\n]*\bplugin\b`)
	semanticKeywords    = []string{"cannot find symbol", "incompatible types", "package does not exist"}
)

// parseDiagnostics applies spec.md §4.5's diagnostic-parsing regexes to the
// combined stdout+stderr of a build invocation.
func parseDiagnostics(output string) []types.CompilationDiagnostic {
	var diagnostics []types.CompilationDiagnostic

	for _, m := range errorLinePattern.FindAllStringSubmatch(output, -1) {
		diagnostics = append(diagnostics, types.CompilationDiagnostic{
			Type:    classifyLineDiagnostic(m[4]),
			File:    m[1],
			Line:    atoiSafe(m[2]),
			Column:  atoiSafe(m[3]),
			Message: strings.TrimSpace(m[4]),
		})
	}

	if dependencyFailure.MatchString(output) {
		diagnostics = append(diagnostics, types.CompilationDiagnostic{
			Type:    types.DiagDependency,
			Message: "build failed while resolving a dependency",
		})
	} else if mavenPluginFailure.MatchString(output) {
		diagnostics = append(diagnostics, types.CompilationDiagnostic{
			Type:    types.DiagMaven,
			Message: "build failed while executing a Maven plugin goal",
		})
	}

	if isPluginSpecificFailure(output) {
		diagnostics = append(diagnostics, types.CompilationDiagnostic{
			Type:       types.DiagPluginSpecific,
			Message:    "unresolved plugin-framework symbol",
			Suggestion: "verify the Bukkit/Spigot API dependency is declared in the build descriptor",
		})
	}

	return diagnostics
}

func classifyLineDiagnostic(message string) types.DiagnosticType {
	lower := strings.ToLower(message)
	for _, kw := range semanticKeywords {
		if strings.Contains(lower, kw) {
			return types.DiagSemantic
		}
	}
	return types.DiagSyntax
}

func isPluginSpecificFailure(output string) bool {
	hasFramework := strings.Contains(output, "JavaPlugin") || strings.Contains(output, "plugin.yml")
	hasUnresolved := strings.Contains(output, "cannot find symbol")
	return hasFramework && hasUnresolved
}

// isBuildFailure reports whether combined output indicates failure; exit
// status alone is not trusted (spec.md §6 "Build toolchain boundary").
func isBuildFailure(output string, exitErr error) bool {
	if exitErr != nil {
		return true
	}
	return strings.Contains(output, "BUILD FAILURE") || strings.Contains(output, "[ERROR]")
}

func atoiSafe(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
