package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/plugincraft/forge/pkg/shared/types"
)

// commonImports maps a diagnostic's unresolved symbol to the import line
// that typically resolves it (spec.md §4.5 "Syntax/semantic").
var commonImports = map[string]string{
	"JavaPlugin": "import org.bukkit.plugin.java.JavaPlugin;",
	"Bukkit":     "import org.bukkit.Bukkit;",
	"Player":     "import org.bukkit.entity.Player;",
	"Listener":   "import org.bukkit.event.Listener;",
	"EventHandler": "import org.bukkit.event.EventHandler;",
	"Command":    "import org.bukkit.command.Command;",
	"CommandSender": "import org.bukkit.command.CommandSender;",
}

// cancellableEventRewrites maps a non-cancellable event class to its
// cancellable sibling (spec.md S5 seed scenario).
var cancellableEventRewrites = map[string]string{
	"EntityDeathEvent": "EntityDamageEvent",
}

var (
	classExtendsPattern = regexp.MustCompile(`class\s+(\w+)\s+extends\s+(\w+)`)
	packageLinePattern   = regexp.MustCompile(`(?m)^package\s+([\w.]+)\s*;`)
)

// applyRuleFixes runs every rule-based fix in turn against the project and
// reports whether at least one fix mutated the tree. It never calls C1.
func (e *Engine) applyRuleFixes(projectPath string, diagnostics []types.CompilationDiagnostic, buildLog string) (bool, error) {
	applied := false

	for _, d := range diagnostics {
		switch d.Type {
		case types.DiagDependency, types.DiagPluginSpecific:
			ok, err := e.fixMissingDependency(projectPath, buildLog)
			if err != nil {
				return applied, err
			}
			applied = applied || ok
		case types.DiagSemantic, types.DiagSyntax:
			ok, err := e.fixMissingImport(projectPath, d)
			if err != nil {
				return applied, err
			}
			applied = applied || ok
		}
	}

	ok, err := e.fixMissingDescriptor(projectPath)
	if err != nil {
		return applied, err
	}
	applied = applied || ok

	ok, err = e.fixCancellableEvents(projectPath)
	if err != nil {
		return applied, err
	}
	applied = applied || ok

	return applied, nil
}

// fixMissingDependency injects the Bukkit/Spigot repository and API
// dependency into the build descriptor when a framework symbol is
// unresolved and the descriptor doesn't already declare it.
func (e *Engine) fixMissingDependency(projectPath, buildLog string) (bool, error) {
	needsFramework := strings.Contains(buildLog, "JavaPlugin") || strings.Contains(buildLog, "Bukkit") || strings.Contains(buildLog, "Spigot")
	if !needsFramework {
		return false, nil
	}

	pomPath := filepath.Join(projectPath, "pom.xml")
	content, err := os.ReadFile(pomPath)
	if err != nil {
		return false, nil
	}
	pom := string(content)
	if strings.Contains(pom, "spigot-api") {
		return false, nil
	}

	repoBlock := `  <repositories>
    <repository>
      <id>spigotmc-repo</id>
      <url>https://hub.spigotmc.org/nexus/content/repositories/snapshots/</url>
    </repository>
  </repositories>
`
	depBlock := `  <dependencies>
    <dependency>
      <groupId>org.spigotmc</groupId>
      <artifactId>spigot-api</artifactId>
      <version>1.20.1-R0.1-SNAPSHOT</version>
      <scope>provided</scope>
    </dependency>
  </dependencies>
`

	if idx := strings.Index(pom, "</project>"); idx >= 0 {
		pom = pom[:idx] + repoBlock + depBlock + pom[idx:]
	} else {
		pom += repoBlock + depBlock
	}

	if err := os.WriteFile(pomPath, []byte(pom), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// fixMissingImport adds a common import keyed by the unresolved symbol
// named in the diagnostic message.
func (e *Engine) fixMissingImport(projectPath string, d types.CompilationDiagnostic) (bool, error) {
	if d.File == "" {
		return false, nil
	}

	var symbol, importLine string
	for sym, imp := range commonImports {
		if strings.Contains(d.Message, sym) {
			symbol, importLine = sym, imp
			break
		}
	}
	if symbol == "" {
		return false, nil
	}

	path := resolveJavaFile(projectPath, d.File)
	content, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	src := string(content)
	if strings.Contains(src, importLine) {
		return false, nil
	}

	loc := packageLinePattern.FindStringIndex(src)
	if loc == nil {
		return false, nil
	}
	insertAt := loc[1]
	src = src[:insertAt] + "\n" + importLine + src[insertAt:]

	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// fixMissingDescriptor locates or synthesizes a plugin descriptor,
// resolving `main` from a scan of files extending the base class.
func (e *Engine) fixMissingDescriptor(projectPath string) (bool, error) {
	descriptorPath := filepath.Join(projectPath, "src", "main", "resources", "plugin.yml")
	if _, err := os.Stat(descriptorPath); err == nil {
		return false, nil
	}

	fqcn, ok := findMainClass(projectPath)
	if !ok {
		return false, nil
	}

	name := filepath.Base(filepath.Dir(projectPath))
	if name == "" || name == "." {
		name = "Plugin"
	}
	descriptor := fmt.Sprintf("name: %s\nversion: 1.0.0\nmain: %s\napi-version: \"1.20\"\n", name, fqcn)

	if err := os.MkdirAll(filepath.Dir(descriptorPath), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(descriptorPath, []byte(descriptor), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// fixCancellableEvents rewrites handlers that call setCancelled on a
// non-cancellable event to the cancellable sibling event (spec.md S5).
func (e *Engine) fixCancellableEvents(projectPath string) (bool, error) {
	applied := false
	err := filepath.WalkDir(projectPath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".java") {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		src := string(content)
		if !strings.Contains(src, "setCancelled") {
			return nil
		}

		original := src
		for from, to := range cancellableEventRewrites {
			if strings.Contains(src, from) {
				src = strings.ReplaceAll(src, from, to)
			}
		}
		if src == original {
			return nil
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// findMainClass scans every .java file under projectPath for a class
// extending JavaPlugin and returns its fully qualified name.
func findMainClass(projectPath string) (string, bool) {
	var fqcn string
	found := false

	_ = filepath.WalkDir(projectPath, func(path string, d os.DirEntry, err error) error {
		if err != nil || found || d.IsDir() || !strings.HasSuffix(path, ".java") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		src := string(content)
		m := classExtendsPattern.FindStringSubmatch(src)
		if m == nil || m[2] != "JavaPlugin" {
			return nil
		}
		pkg := ""
		if pm := packageLinePattern.FindStringSubmatch(src); pm != nil {
			pkg = pm[1]
		}
		if pkg != "" {
			fqcn = pkg + "." + m[1]
		} else {
			fqcn = m[1]
		}
		found = true
		return nil
	})

	return fqcn, found
}

// resolveJavaFile maps a diagnostic's reported file (which may be an
// absolute compiler path or a bare file name) onto the project tree.
func resolveJavaFile(projectPath, reported string) string {
	if filepath.IsAbs(reported) {
		return reported
	}
	return filepath.Join(projectPath, reported)
}
