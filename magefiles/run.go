//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed with anima.toml.
func (Run) Engine() error {
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "anima.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Removes the generated sample content so the next run packs it again.
func (Run) Clean() error {
	for _, dir := range []string{"content", "downloads", "bin"} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}
