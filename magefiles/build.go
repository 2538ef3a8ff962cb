//go:build mage

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL shader under assets/shaders to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/prism", "."), withStream())
	return err
}

// buildShaders turns <name>.<stage>.glsl into <name>.<stage>.spv next to it.
func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.glsl"))
	if err != nil {
		return err
	}
	for _, src := range sources {
		out := strings.TrimSuffix(src, ".glsl") + ".spv"
		stage := filepath.Ext(strings.TrimSuffix(src, ".glsl"))
		if _, err := executeCmd("glslc", withArgs("-fshader-stage="+strings.TrimPrefix(stage, "."), src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	if len(sources) == 0 {
		_, err := os.Stat(shaderDir)
		return err
	}
	return nil
}
