package parser

import (
	"fmt"
	"strings"
)

// SynthesizeMinimalPlugin builds a deterministic minimal plugin (main
// class, plugin descriptor, config) so the pipeline can still progress
// when every parsing strategy has failed (spec.md §4.6).
func SynthesizeMinimalPlugin(pluginName string) *Result {
	name := sanitizePluginName(pluginName)
	className := exportedClassName(name)
	pkg := strings.ToLower(className)

	mainClass := fmt.Sprintf(`package com.forge.%s;

import org.bukkit.plugin.java.JavaPlugin;

public class %s extends JavaPlugin {

    @Override
    public void onEnable() {
        getLogger().info("%s has been enabled.");
        saveDefaultConfig();
    }

    @Override
    public void onDisable() {
        getLogger().info("%s has been disabled.");
    }
}
`, pkg, className, name, name)

	descriptor := fmt.Sprintf(`name: %s
version: 1.0.0
main: com.forge.%s.%s
api-version: "1.20"
`, name, pkg, className)

	config := "# generated default configuration\nenabled: true\n"

	return &Result{
		CreatedFiles: []FileOp{
			{Path: fmt.Sprintf("src/main/java/com/forge/%s/%s.java", pkg, className), Content: mainClass},
			{Path: "src/main/resources/plugin.yml", Content: descriptor},
			{Path: "src/main/resources/config.yml", Content: config},
		},
	}
}

func sanitizePluginName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "GeneratedPlugin"
	}
	return name
}

// exportedClassName derives a Java-safe, capitalized class name from an
// arbitrary plugin name ("my cool plugin" → "MyCoolPlugin").
func exportedClassName(name string) string {
	var b strings.Builder
	capitalizeNext := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			if capitalizeNext {
				b.WriteString(strings.ToUpper(string(r)))
				capitalizeNext = false
			} else {
				b.WriteRune(r)
			}
		default:
			capitalizeNext = true
		}
	}
	if b.Len() == 0 {
		return "GeneratedPlugin"
	}
	return b.String()
}
