package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// stderrTail bounds how much subprocess output is kept for error messages.
const stderrTail = 2048

// CommandError 子进程执行失败
type CommandError struct {
	Name   string
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

// RunCommand 执行系统命令并返回标准输出。失败时保留 stderr 的末尾部分；
// ctx 到期时返回的错误匹配 context.DeadlineExceeded。
func RunCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return stdout.String(), &CommandError{Name: name, Err: err, Stderr: tail(stderr.String(), stderrTail)}
	}
	return stdout.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// CopyFile 复制文件，先写临时文件再重命名
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	tmp := dst + ".tmp-" + uuid.NewString()
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create target %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy file contents: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close target: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename target: %w", err)
	}
	return nil
}

// SameFile reports whether a and b resolve to the same file.
func SameFile(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

// GetHardwareAccelArgs 获取硬件加速参数
func GetHardwareAccelArgs(gpuType string) []string {
	switch strings.ToLower(gpuType) {
	case "nvidia", "cuda":
		return []string{"-hwaccel", "cuda"}
	case "amd":
		return []string{"-hwaccel", "d3d11va"}
	case "intel", "qsv":
		return []string{"-hwaccel", "qsv"}
	default:
		return nil // CPU
	}
}

// DetectGPUType 通过 ffmpeg 可用编码器检测 GPU 类型
func DetectGPUType(ctx context.Context) string {
	out, err := RunCommand(ctx, "ffmpeg", "-hide_banner", "-encoders")
	if err != nil {
		return "cpu"
	}
	return gpuFromEncoders(out)
}

func gpuFromEncoders(list string) string {
	switch {
	case strings.Contains(list, "h264_nvenc"):
		return "nvidia"
	case strings.Contains(list, "h264_amf"):
		return "amd"
	case strings.Contains(list, "h264_qsv"):
		return "intel"
	default:
		return "cpu"
	}
}

// ProbeDuration 使用 ffprobe 获取媒体时长（秒）
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := RunCommand(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(out), err)
	}
	return d, nil
}

// FileExists 检查普通文件是否存在（目录不算）
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
