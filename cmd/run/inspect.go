package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/wippyai/wasm-iodevices/snapshot"
)

// inspect prints the container header and descriptors of a snapshot file.
func inspect(w io.Writer, path string, diag bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	info, err := snapshot.Inspect(data)
	if err != nil {
		return err
	}
	rec, err := snapshot.Decode(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Snapshot: %s\n", path)
	fmt.Fprintf(w, "Container version: %d\n", info.Version)
	fmt.Fprintf(w, "Compression: %s (%d bytes stored, %d bytes payload)\n", info.Compression, info.StoredSize, info.PayloadSize)
	fmt.Fprintf(w, "Record version: %d\n", rec.Version)
	fmt.Fprintf(w, "Devices: %d\n\n", len(rec.Devices))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tSIZE\tSTATE\tFORMAT\tSHAPE")
	for _, d := range rec.Devices {
		fmt.Fprintf(tw, "%d\t%dx%d\t%s\t%s\t%s\n", d.Handle, d.Width, d.Height, d.State, d.Format, d.Shape)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if diag {
		text, err := snapshot.Diagnose(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n--- payload ---\n%s\n", text)
	}
	return nil
}
