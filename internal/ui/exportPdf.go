package ui

import (
	"os"

	"github.com/golang/glog"

	"MapBoard/internal/export"
	"MapBoard/internal/state"
)

// ExportPDF writes the current map to a PDF file.
func ExportPDF(path string, snap state.Snapshot) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WritePDF(file, snap); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	glog.Infof("[client] exported %d shapes to %s\n", len(snap.Drawings), path)
	return nil
}
