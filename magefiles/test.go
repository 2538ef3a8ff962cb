//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests. Nothing here needs a GPU or a window.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./engine/..."), withStream())
	return err
}
