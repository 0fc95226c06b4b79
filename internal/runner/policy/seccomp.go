package policy

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultSeccompProfile is a baseline syscall filter applied when the
// runner's RUNNER_SECCOMP_PROFILE is "default": it denies the handful of
// syscalls a workspace container has no legitimate use for (namespace
// and module manipulation, raw reboot) while allowing everything else,
// approximating Docker's own bundled default profile closely enough for
// a non-privileged dev sandbox.
const defaultSeccompProfile = `{
  "defaultAction": "SCMP_ACT_ALLOW",
  "syscalls": [
    {
      "names": [
        "reboot",
        "kexec_load",
        "kexec_file_load",
        "init_module",
        "finit_module",
        "delete_module",
        "mount",
        "umount2",
        "pivot_root",
        "unshare",
        "setns"
      ],
      "action": "SCMP_ACT_ERRNO"
    }
  ]
}
`

// ResolveSeccompProfile turns a configured profile value into the path
// BuildCreateArgs should pass to `--security-opt seccomp=<path>`.
// "" disables the flag (the caller sees an empty string back); "default"
// materialises the embedded baseline profile into dir and returns its
// path; anything else is treated as an explicit path and passed through
// unchanged.
func ResolveSeccompProfile(value, dir string) (string, error) {
	if value == "" || value != "default" {
		return value, nil
	}

	path := filepath.Join(dir, "seccomp-default.json")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("policy: create seccomp profile dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultSeccompProfile), 0o600); err != nil {
		return "", fmt.Errorf("policy: write default seccomp profile: %w", err)
	}
	return path, nil
}
