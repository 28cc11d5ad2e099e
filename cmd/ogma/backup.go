package main

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	goarchive "github.com/moby/go-archive"
)

const defaultDataDir = "data"

// runBackup archives the data directory (sqlite store, checkpoints,
// NATS state) into a zstd-compressed tar.
func runBackup(args []string) error {
	outputPath, dataDir, err := parseArchiveArgs(args, "backup")
	if err != nil {
		return err
	}

	if _, err := os.Stat(dataDir); err != nil {
		return fmt.Errorf("data directory %s: %w", dataDir, err)
	}

	tarStream, err := goarchive.TarWithOptions(dataDir, &goarchive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create tar stream: %w", err)
	}
	defer tarStream.Close()

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	if _, err := io.Copy(zw, tarStream); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	// Close explicitly to catch write errors.
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return err
	}
	fmt.Printf("Backup complete: %s (%d bytes)\n", outputPath, info.Size())
	return nil
}

// runRestore unpacks an archive produced by runBackup into the data
// directory. Refuses to overwrite an existing directory.
func runRestore(args []string) error {
	archivePath, dataDir, err := parseArchiveArgs(args, "restore")
	if err != nil {
		return err
	}

	if _, err := os.Stat(dataDir); err == nil {
		return fmt.Errorf("data directory %s already exists, move it aside first", dataDir)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	if err := goarchive.Untar(zr, dataDir, &goarchive.TarOptions{}); err != nil {
		return fmt.Errorf("unpack archive: %w", err)
	}

	fmt.Printf("Restore complete: %s\n", dataDir)
	return nil
}

func parseArchiveArgs(args []string, cmd string) (file, dataDir string, err error) {
	dataDir = defaultDataDir
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf("missing value for -f")
			}
			i++
			file = args[i]
		case "-data":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf("missing value for -data")
			}
			i++
			dataDir = args[i]
		}
	}
	if file == "" {
		fmt.Fprintf(os.Stderr, "Usage: ogma %s -f <archive.tar.zst> [-data <dir>]\n", cmd)
		return "", "", fmt.Errorf("missing -f flag")
	}
	return file, dataDir, nil
}
