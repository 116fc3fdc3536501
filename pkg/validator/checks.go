package validator

import (
	"regexp"
	"sort"
	"strings"

	"github.com/plugincraft/forge/pkg/shared/types"
)

// wellKnownTypes are JDK/Bukkit identifiers the class-reference check
// never flags as unknown.
var wellKnownTypes = map[string]bool{
	"String": true, "Integer": true, "Long": true, "Double": true, "Boolean": true,
	"List": true, "Map": true, "Set": true, "ArrayList": true, "HashMap": true, "HashSet": true,
	"Override": true, "Exception": true, "RuntimeException": true, "Object": true,
	"JavaPlugin": true, "Bukkit": true, "Player": true, "Listener": true, "EventHandler": true,
	"Command": true, "CommandSender": true, "CommandExecutor": true, "World": true,
	"Location": true, "ItemStack": true, "Material": true, "Event": true, "Cancellable": true,
	"FileConfiguration": true, "YamlConfiguration": true, "Logger": true,
}

var (
	packageDeclPattern  = regexp.MustCompile(`(?m)^\s*package\s+([a-zA-Z0-9_.]+)\s*;`)
	importPattern       = regexp.MustCompile(`(?m)^\s*import\s+([a-zA-Z0-9_.]+)\s*;`)
	newExprPattern      = regexp.MustCompile(`\bnew\s+([A-Z][A-Za-z0-9_]*)\s*\(`)
	staticCallPattern   = regexp.MustCompile(`\b([A-Z][A-Za-z0-9_]*)\.[a-zA-Z]`)
	mainDeclPattern     = regexp.MustCompile(`(?m)^\s*main:\s*(\S+)`)
	commandsPattern     = regexp.MustCompile(`(?m)^\s*commands:\s*$`)
	commandEntryPattern = regexp.MustCompile(`(?m)^\s{2,}([a-zA-Z0-9_-]+):\s*$`)
	yamlKeyPattern      = regexp.MustCompile(`(?m)^([a-zA-Z0-9_-]+):`)
)

func isJava(fileName string) bool {
	return strings.HasSuffix(fileName, ".java")
}

func isYAML(fileName string) bool {
	return strings.HasSuffix(fileName, ".yml") || strings.HasSuffix(fileName, ".yaml")
}

func looksLikeMain(content string) bool {
	return strings.Contains(content, "extends JavaPlugin")
}

// --- 1. Package consistency ---

func checkPackageConsistency(step *types.FileStep, content string, ctx ProjectContext) (int, []string, []string) {
	if step == nil || !isJava(step.FileName) {
		return 0, nil, nil
	}

	m := packageDeclPattern.FindStringSubmatch(content)
	if m == nil {
		if looksLikeMain(content) {
			return 15, []string{step.FileName + ": main class is missing a package declaration"}, nil
		}
		return 0, nil, []string{step.FileName + ": consider adding a package declaration"}
	}
	pkg := m[1]

	existing := existingPackages(ctx)
	if len(existing) == 0 {
		return 0, nil, nil
	}

	root := commonRoot(existing)
	pluginToken := strings.ToLower(strings.ReplaceAll(ctx.PluginName, " ", ""))
	for _, other := range existing {
		if other == pkg || strings.HasPrefix(pkg, other+".") || strings.HasPrefix(other, pkg+".") {
			return 0, nil, nil
		}
	}
	if root != "" && strings.HasPrefix(pkg, root) {
		return 0, nil, nil
	}
	if pluginToken != "" && strings.Contains(strings.ToLower(pkg), pluginToken) {
		return 0, nil, nil
	}

	return 10, []string{step.FileName + ": package " + pkg + " diverges from the project's existing packages"}, nil
}

func existingPackages(ctx ProjectContext) []string {
	seen := map[string]bool{}
	var out []string
	for name, content := range ctx.Files {
		if !isJava(name) {
			continue
		}
		if m := packageDeclPattern.FindStringSubmatch(content); m != nil && !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	sort.Strings(out)
	return out
}

func commonRoot(packages []string) string {
	if len(packages) == 0 {
		return ""
	}
	parts := strings.Split(packages[0], ".")
	for _, pkg := range packages[1:] {
		otherParts := strings.Split(pkg, ".")
		parts = commonPrefix(parts, otherParts)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ".")
}

func commonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var out []string
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			break
		}
		out = append(out, a[i])
	}
	return out
}

// --- 2. Class references ---

func checkClassReferences(step *types.FileStep, content string, ctx ProjectContext) (int, []string, []string) {
	if step == nil || !isJava(step.FileName) {
		return 0, nil, nil
	}

	known := knownClassNames(ctx)
	seen := map[string]bool{}
	var penalty int
	var issues, suggestions []string

	candidates := append(newExprPattern.FindAllStringSubmatch(content, -1), staticCallPattern.FindAllStringSubmatch(content, -1)...)
	for _, m := range candidates {
		name := m[1]
		if seen[name] || wellKnownTypes[name] || known[name] {
			seen[name] = true
			continue
		}
		seen[name] = true
		if best, ok := bestJaccardMatch(name, known); ok {
			suggestions = append(suggestions, "unknown reference "+name+" in "+step.FileName+": did you mean "+best+"?")
		} else {
			issues = append(issues, "unknown class reference "+name+" in "+step.FileName)
			penalty += 5
		}
	}
	return penalty, issues, suggestions
}

func knownClassNames(ctx ProjectContext) map[string]bool {
	known := map[string]bool{}
	for name := range ctx.Files {
		if !isJava(name) {
			continue
		}
		base := strings.TrimSuffix(baseName(name), ".java")
		known[base] = true
	}
	return known
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func bestJaccardMatch(name string, known map[string]bool) (string, bool) {
	var best string
	var bestScore float64
	for candidate := range known {
		score := jaccardSimilarity(name, candidate)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore >= 0.7 {
		return best, true
	}
	return "", false
}

// jaccardSimilarity computes set-of-characters Jaccard similarity between
// two identifiers, used for "did you mean" suggestions (spec.md §4.4):
// |intersection| / |union| over each identifier's distinct lowercase
// characters, which tolerates single-character typos and drops/adds well.
func jaccardSimilarity(a, b string) float64 {
	setA := charSet(a)
	setB := charSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	intersection := 0
	for c := range setA {
		if setB[c] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func charSet(s string) map[rune]bool {
	out := map[rune]bool{}
	for _, r := range strings.ToLower(s) {
		out[r] = true
	}
	return out
}

// --- 3. Import analysis ---

func checkImportAnalysis(step *types.FileStep, content string, ctx ProjectContext) (int, []string, []string) {
	if step == nil || !isJava(step.FileName) {
		return 0, nil, nil
	}

	var penalty int
	var issues, suggestions []string
	for _, m := range importPattern.FindAllStringSubmatch(content, -1) {
		full := m[1]
		symbol := full[strings.LastIndexByte(full, '.')+1:]
		body := content[strings.Index(content, m[0])+len(m[0]):]
		if !strings.Contains(body, symbol) {
			suggestions = append(suggestions, step.FileName+": import "+full+" appears unused")
			continue
		}
		if strings.HasPrefix(full, "com.forge.") && !knownClassNames(ctx)[symbol] && symbol != baseName(strings.TrimSuffix(step.FileName, ".java")) {
			issues = append(issues, step.FileName+": import "+full+" references a class that does not exist in the project")
			penalty += 8
		}
	}
	return penalty, issues, suggestions
}

// --- 4. Config consistency ---

func checkConfigConsistency(step *types.FileStep, content string, ctx ProjectContext) (int, []string, []string) {
	if step == nil || !isYAML(step.FileName) {
		return 0, nil, nil
	}

	keys := yamlKeys(content)
	var suggestions []string
	for name, other := range ctx.Files {
		if name == step.FileName || !isYAML(name) {
			continue
		}
		otherKeys := yamlKeys(other)
		for _, k := range otherKeys {
			if contains(keys, k) {
				continue
			}
			if best, ok := bestKeyMatch(k, keys); ok {
				suggestions = append(suggestions, step.FileName+": key "+best+" may be a near-miss of "+name+"'s "+k)
			}
		}
	}
	return 0, nil, suggestions
}

func yamlKeys(content string) []string {
	var keys []string
	for _, m := range yamlKeyPattern.FindAllStringSubmatch(content, -1) {
		keys = append(keys, m[1])
	}
	return keys
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func bestKeyMatch(key string, candidates []string) (string, bool) {
	var best string
	var bestScore float64
	for _, c := range candidates {
		if score := jaccardSimilarity(key, c); score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore >= 0.7 && bestScore < 1 {
		return best, true
	}
	return "", false
}

// --- 5. Plugin descriptor consistency ---

func checkPluginDescriptorConsistency(step *types.FileStep, content string, ctx ProjectContext) (int, []string, []string) {
	if step == nil || !strings.HasSuffix(step.FileName, "plugin.yml") {
		return 0, nil, nil
	}

	var penalty int
	var issues []string

	m := mainDeclPattern.FindStringSubmatch(content)
	if m == nil {
		return 20, []string{"plugin.yml: missing main: declaration"}, nil
	}
	mainClass := m[1]
	simpleName := mainClass[strings.LastIndexByte(mainClass, '.')+1:]

	found := false
	for name, javaContent := range ctx.Files {
		if isJava(name) && strings.TrimSuffix(baseName(name), ".java") == simpleName {
			found = true
			if !strings.Contains(javaContent, "extends JavaPlugin") {
				penalty += 15
				issues = append(issues, "plugin.yml: main class "+mainClass+" does not extend the plugin base class")
			}
		}
	}
	if !found {
		penalty += 20
		issues = append(issues, "plugin.yml: main class "+mainClass+" does not resolve to any generated file")
	}

	if commandsPattern.MatchString(content) {
		for _, cm := range commandEntryPattern.FindAllStringSubmatch(content, -1) {
			cmdName := cm[1]
			if !commandReferencedAnywhere(cmdName, ctx) {
				penalty += 5
				issues = append(issues, "plugin.yml: declared command "+cmdName+" is not handled in any generated file")
			}
		}
	}

	return penalty, issues, nil
}

func commandReferencedAnywhere(cmd string, ctx ProjectContext) bool {
	for name, content := range ctx.Files {
		if !isJava(name) {
			continue
		}
		if strings.Contains(content, "\""+cmd+"\"") || strings.Contains(content, "getCommand(\""+cmd+"\")") {
			return true
		}
	}
	return false
}

// --- 6. Dependency fulfilment ---

var integrationMarkers = map[types.FileType][]string{
	types.FileListener: {"registerEvents", "implements Listener"},
	types.FileCommand:  {"onCommand", "CommandExecutor"},
}

func checkDependencyFulfilment(step *types.FileStep, content string, ctx ProjectContext) (int, []string, []string) {
	if step == nil {
		return 0, nil, nil
	}
	markers, ok := integrationMarkers[step.FileType]
	if !ok || len(step.Dependencies) == 0 {
		return 0, nil, nil
	}

	present := false
	for _, marker := range markers {
		if strings.Contains(content, marker) {
			present = true
			break
		}
	}
	if present {
		return 0, nil, nil
	}
	return 10, []string{step.FileName + ": expected integration marker for " + string(step.FileType) + " not found"}, nil
}

// --- 7. Style consistency ---

func checkStyleConsistency(step *types.FileStep, content string, ctx ProjectContext) (int, []string, []string) {
	if step == nil || !isJava(step.FileName) {
		return 0, nil, nil
	}

	reference := firstExistingJavaFile(ctx)
	if reference == "" {
		return 0, nil, nil
	}

	refTabs := strings.Contains(reference, "\n\t")
	newTabs := strings.Contains(content, "\n\t")
	if refTabs != newTabs && (strings.Contains(content, "\n\t") || strings.Contains(content, "\n    ")) {
		return 3, nil, []string{step.FileName + ": indentation style differs from the rest of the project"}
	}
	return 0, nil, nil
}

func firstExistingJavaFile(ctx ProjectContext) string {
	var names []string
	for name := range ctx.Files {
		if isJava(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return ctx.Files[names[0]]
}
