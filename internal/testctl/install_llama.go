package testctl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// llamaSrcDir is where the llama.cpp checkout is cloned or updated.
func llamaSrcDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "src", "llama.cpp")
}

func ensureLlamaCheckout() (string, error) {
	dir := llamaSrcDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", err
		}
		info("[llama] Cloning llama.cpp into %s", dir)
		if err := runCmdVerbose(context.Background(), "git", "clone", "https://github.com/ggerganov/llama.cpp.git", dir); err != nil {
			return "", err
		}
	} else {
		info("[llama] Updating llama.cpp in %s", dir)
		_ = runCmdVerbose(context.Background(), "git", "-C", dir, "pull", "--ff-only")
	}
	return dir, nil
}

func buildLlama(srcDir, buildDir string, extraCMake ...string) error {
	args := []string{
		"-S", srcDir,
		"-B", buildDir,
		"-DCMAKE_BUILD_TYPE=Release",
		"-DBUILD_SHARED_LIBS=ON",
	}
	args = append(args, extraCMake...)
	if err := runCmdVerbose(context.Background(), "cmake", args...); err != nil {
		return err
	}
	if err := runCmdVerbose(context.Background(), "cmake", "--build", buildDir, "-j"); err != nil {
		return err
	}
	server := filepath.Join(buildDir, "bin", "llama-server")
	if fi, err := os.Stat(server); err != nil || fi.IsDir() {
		return fmt.Errorf("llama-server not found at %s", server)
	}
	info("[llama] Built: %s", server)
	info("[llama] Point chatd at it with --llama-bin %s", server)
	return nil
}

// installLlama builds llama.cpp without GPU offload. The resulting
// build/bin/llama-server binary is what chatd spawns per session.
func installLlama() error {
	srcDir, err := ensureLlamaCheckout()
	if err != nil {
		return err
	}
	info("[llama] Configuring CMake (CPU)")
	return buildLlama(srcDir, filepath.Join(srcDir, "build"))
}

// installLlamaCUDA builds llama.cpp with CUDA on Arch-like systems. It
// prefers gcc-14 as the CUDA host compiler when available and builds under
// build-cuda14, including libllama.so for cgo builds with the llama tag.
func installLlamaCUDA() error {
	if !isArchLike() {
		return fmt.Errorf("llama:cuda installer currently supports Arch Linux-like distros; on %s please follow llama.cpp build docs for CUDA", runtime.GOOS)
	}
	info("[llama] Installing prerequisites (Arch)…")
	_ = runCmdVerbose(context.Background(), "pacman", "-S", "--needed", "--noconfirm", "base-devel", "cmake", "git", "ninja", "openblas", "cblas", "lapack")
	if err := runMaybeSudo("pacman", "-S", "--needed", "--noconfirm", "cuda"); err != nil {
		return fmt.Errorf("failed to install cuda via pacman: %w", err)
	}

	// Prefer GCC 14 for CUDA host compiler on Arch
	hostCXX := "/usr/bin/g++-14"
	if _, err := os.Stat(hostCXX); os.IsNotExist(err) {
		info("[llama] gcc-14 not found; attempting installation…")
		if err := runMaybeSudo("pacman", "-S", "--needed", "--noconfirm", "gcc14", "gcc14-libs"); err != nil {
			info("[llama] Could not install gcc14 automatically: %v", err)
			if p, lookErr := exec.LookPath("g++"); lookErr == nil {
				hostCXX = p
			} else {
				hostCXX = "/usr/bin/g++"
			}
		}
	}

	srcDir, err := ensureLlamaCheckout()
	if err != nil {
		return err
	}
	buildDir := filepath.Join(srcDir, "build-cuda14")
	info("[llama] Configuring CMake (CUDA) with host compiler: %s", hostCXX)
	if err := buildLlama(srcDir, buildDir,
		"-DGGML_CUDA=ON",
		"-DCUDAToolkit_ROOT=/opt/cuda",
		"-DCMAKE_CUDA_HOST_COMPILER="+hostCXX,
	); err != nil {
		return err
	}

	soPath := filepath.Join(buildDir, "bin", "libllama.so")
	if fi, err := os.Stat(soPath); err != nil || fi.IsDir() {
		// Older trees place the library next to the build root.
		soPath = filepath.Join(buildDir, "libllama.so")
		if fi, err := os.Stat(soPath); err != nil || fi.IsDir() {
			return fmt.Errorf("libllama.so not found under %s", buildDir)
		}
	}
	info("[llama] Built: %s", soPath)
	info("[llama] For the in-process backend (go build -tags llama), export:")
	info("    export LLAMA_CPP_DIR=%s", srcDir)
	info("    export CGO_CFLAGS=\"-I$LLAMA_CPP_DIR -I$LLAMA_CPP_DIR/ggml/include\"")
	info("    export CGO_LDFLAGS=\"-L%s -lllama\"", filepath.Dir(soPath))
	info("    export LD_LIBRARY_PATH=\"%s:/opt/cuda/lib64:$LD_LIBRARY_PATH\"", filepath.Dir(soPath))
	info("    export CGO_ENABLED=1")
	return nil
}

// runMaybeSudo tries sudo if not root, else runs directly.
func runMaybeSudo(name string, args ...string) error {
	if os.Geteuid() == 0 {
		return runCmdVerbose(context.Background(), name, args...)
	}
	if _, err := exec.LookPath("sudo"); err == nil {
		return runCmdVerbose(context.Background(), "sudo", append([]string{name}, args...)...)
	}
	return runCmdVerbose(context.Background(), name, args...)
}
