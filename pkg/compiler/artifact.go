package compiler

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
)

// excludedJarSuffixes are variant JARs that are never the primary artifact
// (spec.md §6 glossary "Artifact JAR").
var excludedJarSuffixes = []string{"-sources.jar", "-javadoc.jar", "-shaded.jar"}

// ArtifactResult is the outcome of scanning target/ for the primary JAR.
type ArtifactResult struct {
	Path     string
	Warnings []string
}

// findArtifact scans projectPath/target for the non-sources/non-javadoc/
// non-shaded JAR with the latest mtime and verifies its contents.
func findArtifact(projectPath string) (*ArtifactResult, error) {
	targetDir := filepath.Join(projectPath, "target")
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return &ArtifactResult{Warnings: []string{"target directory not found: " + err.Error()}}, nil
	}

	var (
		latestPath string
		latestMod  int64
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jar") {
			continue
		}
		if isExcludedJar(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().Unix(); mod >= latestMod {
			latestMod = mod
			latestPath = filepath.Join(targetDir, entry.Name())
		}
	}

	if latestPath == "" {
		return &ArtifactResult{Warnings: []string{"no primary artifact JAR found in target/"}}, nil
	}

	result := &ArtifactResult{Path: latestPath}
	hasDescriptor, hasClass, err := inspectJar(latestPath)
	if err != nil {
		result.Warnings = append(result.Warnings, "could not inspect artifact: "+err.Error())
		return result, nil
	}
	if !hasDescriptor {
		result.Warnings = append(result.Warnings, "artifact JAR is missing plugin.yml")
	}
	if !hasClass {
		result.Warnings = append(result.Warnings, "artifact JAR contains no .class entries")
	}
	return result, nil
}

func isExcludedJar(name string) bool {
	for _, suffix := range excludedJarSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// inspectJar reports whether the JAR contains a plugin descriptor and at
// least one compiled class entry.
func inspectJar(path string) (hasDescriptor, hasClass bool, err error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false, false, err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name == "plugin.yml" {
			hasDescriptor = true
		}
		if strings.HasSuffix(f.Name, ".class") {
			hasClass = true
		}
	}
	return hasDescriptor, hasClass, nil
}
