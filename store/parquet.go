// Package store persists self-play training rows as zstd-compressed parquet.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/nrow/game"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// SchemaVersion is stored under the "schema" key of every file.
const SchemaVersion = "nrow_training_row_v1"

// TrainingRow is one self-play ply.
//
// Planes is the [4][Height][Width] feature tensor of the position before the
// move, flattened. Policy is the search's move distribution over all
// Width*Height cells with zeros at occupied cells. Value is the final outcome
// from Player's perspective: +1 win, -1 loss, 0 draw.
type TrainingRow struct {
	GameID    string    `parquet:"game_id,dict"`
	Ply       int32     `parquet:"ply"`
	Width     int32     `parquet:"width"`
	Height    int32     `parquet:"height"`
	WinLength int32     `parquet:"win_length"`
	Player    int32     `parquet:"player"`
	Planes    []float32 `parquet:"planes"`
	Policy    []float32 `parquet:"policy"`
	Value     float32   `parquet:"value"`
	Source    string    `parquet:"source,dict"`

	// ModelPath is the model that guided the search, empty for the uniform
	// evaluator.
	ModelPath string `parquet:"model_path,dict,optional"`
}

// RowsFromSamples converts one finished game into training rows.
func RowsFromSamples(gameID, source, modelPath string, b *game.Board, samples []game.Sample) []TrainingRow {
	rows := make([]TrainingRow, len(samples))
	for i, s := range samples {
		policy := make([]float32, len(s.Probs))
		for j, p := range s.Probs {
			policy[j] = float32(p)
		}
		rows[i] = TrainingRow{
			GameID:    gameID,
			Ply:       int32(i),
			Width:     int32(b.Width()),
			Height:    int32(b.Height()),
			WinLength: int32(b.WinLength()),
			Player:    int32(s.Player),
			Planes:    s.Planes,
			Policy:    policy,
			Value:     float32(s.Value),
			Source:    source,
			ModelPath: modelPath,
		}
	}
	return rows
}

func writeOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("planes"),
		parquet.KeyValueMetadata("schema", SchemaVersion),
	}
}

// WriteBatchParquetAtomic writes rows into outDir/tmp and then renames the
// file into outDir so readers never observe a partial file.
func WriteBatchParquetAtomic(outDir string, rows []TrainingRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadRows loads every row of a training file.
func ReadRows(path string) ([]TrainingRow, error) {
	rows, err := parquet.ReadFile[TrainingRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
