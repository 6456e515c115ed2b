package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCommand verifies that the executable of a configured command line can
// be resolved.
func CheckCommand(name string, argv []string) Result {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return Result{Name: name, Passed: true, Detail: "Not configured"}
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not found in PATH)", argv[0])}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckRedis dials url and issues a PING.
func CheckRedis(ctx context.Context, name, url string) Result {
	if strings.TrimSpace(url) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	conn, err := redis.DialURLContext(ctx, url)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable: %v", err)}
	}
	defer conn.Close()
	reply, err := redis.String(redis.DoContext(conn, ctx, "PING"))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("ping failed: %v", err)}
	}
	return Result{Name: name, Passed: true, Detail: reply}
}
