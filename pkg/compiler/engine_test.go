package compiler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/plugincraft/forge/internal/config"
	"github.com/plugincraft/forge/pkg/compiler"
)

func TestCompiler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Compile/Repair Engine Suite")
}

// writeFakeBuildScript drops an executable shell script at dir/build.sh and
// returns its path, standing in for a real Maven invocation so the test
// doesn't depend on the toolchain being installed.
func writeFakeBuildScript(t GinkgoTInterface, dir, script string) string {
	path := filepath.Join(dir, "build.sh")
	Expect(os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755)).To(Succeed())
	return path
}

var _ = Describe("Engine.Run", func() {
	var projectPath string

	BeforeEach(func() {
		var err error
		projectPath, err = os.MkdirTemp("", "forge-compiler-*")
		Expect(err).ToNot(HaveOccurred())
		pom := "<project><groupId>com.forge</groupId><artifactId>cool</artifactId><version>1.0.0</version></project>\n"
		Expect(os.WriteFile(filepath.Join(projectPath, "pom.xml"), []byte(pom), 0o644)).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(projectPath)
	})

	It("succeeds on the first build and reports a missing target directory", func() {
		script := writeFakeBuildScript(GinkgoT(), projectPath, "echo 'BUILD SUCCESS'\nexit 0\n")
		cfg := config.CompilerConfig{BuildCmd: script, Timeout: config.Duration(5 * time.Second), AutoFix: false, AIFix: false}
		engine := compiler.NewEngine(cfg, nil, nil)

		result, err := engine.Run(context.Background(), projectPath)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Attempts).To(Equal(1))
		Expect(result.Artifact).ToNot(BeNil())
		Expect(result.Artifact.Warnings).ToNot(BeEmpty())
	})

	It("applies a rule-based dependency fix and succeeds on the rebuild", func() {
		script := writeFakeBuildScript(GinkgoT(), projectPath, `
if grep -q "spigot-api" pom.xml; then
  echo "BUILD SUCCESS"
  exit 0
else
  echo "[ERROR] Failed to execute goal: Could not resolve dependency for JavaPlugin"
  exit 1
fi
`)
		cfg := config.CompilerConfig{BuildCmd: script, Timeout: config.Duration(5 * time.Second), AutoFix: true, AIFix: false}
		engine := compiler.NewEngine(cfg, nil, nil)

		result, err := engine.Run(context.Background(), projectPath)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Attempts).To(Equal(2))
		Expect(result.RepairedBy).To(ContainElement("rule-based"))

		pom, readErr := os.ReadFile(filepath.Join(projectPath, "pom.xml"))
		Expect(readErr).ToNot(HaveOccurred())
		Expect(string(pom)).To(ContainSubstring("spigot-api"))
	})

	It("reports failure when no fix resolves the build and auto/AI fixing are both off", func() {
		script := writeFakeBuildScript(GinkgoT(), projectPath, "echo '[ERROR] something is wrong'\nexit 1\n")
		cfg := config.CompilerConfig{BuildCmd: script, Timeout: config.Duration(5 * time.Second), AutoFix: false, AIFix: false}
		engine := compiler.NewEngine(cfg, nil, nil)

		result, err := engine.Run(context.Background(), projectPath)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Success).To(BeFalse())
		Expect(result.Attempts).To(Equal(1))
	})
})
