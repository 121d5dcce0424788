package manifest

import (
	"fmt"
	"os/exec"
	"strings"
)

// runGit runs git with args in dir and returns trimmed stdout. On failure
// the combined output is folded into the error.
func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		where := dir
		if where == "" {
			where = "."
		}
		return "", fmt.Errorf("git %s in %s: %s: %w", args[0], where, text, err)
	}
	return text, nil
}

func gitClone(url, dest string) error {
	_, err := runGit("", "clone", "--quiet", url, dest)
	return err
}

// gitCheckout checks out a tag, branch or commit.
func gitCheckout(dir, ref string) error {
	_, err := runGit(dir, "checkout", "--quiet", ref)
	return err
}

func gitFetch(dir string) error {
	_, err := runGit(dir, "fetch", "--quiet", "--all", "--tags")
	return err
}

func gitCurrentCommit(dir string) (string, error) {
	return runGit(dir, "rev-parse", "HEAD")
}
