// Package planfile persists plans as two binary side files so an expensive
// decomposition can be replayed across processes.
//
// For path dir/name the regions go to dir/base_name and the sync vector to
// dir/sync_name. Both files are little-endian:
//
//	base: "STPB" version:u32 rank:u32 color:i64 count:u64
//	      count x (index t0 t1 x0[rank] x1[rank] dx0[rank] dx1[rank]):i64
//	sync: "STPS" version:u32 color:i64 count:u64 count x offset:i64
package planfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/roach88/stencil/internal/ir"
)

const (
	regionMagic = "STPB"
	syncMagic   = "STPS"
)

// ErrFormat reports a file that is not a plan file of this version.
var ErrFormat = errors.New("plan file format")

// Paths returns the region and sync file paths for path.
func Paths(path string) (regions, sync string) {
	dir, name := filepath.Split(path)
	return filepath.Join(dir, "base_"+name), filepath.Join(dir, "sync_"+name)
}

// Store writes plan's regions and sync vector next to path.
func Store(path string, plan *ir.Plan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid plan: %w", err)
	}
	regionPath, syncPath := Paths(path)
	if err := writeAtomic(regionPath, func(w io.Writer) error { return writeRegions(w, plan) }); err != nil {
		return err
	}
	return writeAtomic(syncPath, func(w io.Writer) error { return writeSync(w, plan) })
}

// Load reads the plan stored next to path and validates it.
func Load(path string) (*ir.Plan, error) {
	regionPath, syncPath := Paths(path)
	plan := &ir.Plan{}

	color, err := readFile(regionPath, func(r io.Reader, size int64) (int64, error) { return readRegions(r, size, plan) })
	if err != nil {
		return nil, err
	}
	syncColor, err := readFile(syncPath, func(r io.Reader, size int64) (int64, error) { return readSync(r, size, plan) })
	if err != nil {
		return nil, err
	}
	if color != syncColor {
		return nil, fmt.Errorf("%w: region file color %d, sync file color %d", ErrFormat, color, syncColor)
	}
	plan.Color = int(color)
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func readFile(path string, read func(r io.Reader, size int64) (int64, error)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open plan file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat plan file: %w", err)
	}

	color, err := read(bufio.NewReader(f), info.Size())
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return color, nil
}

type header struct {
	Magic   [4]byte
	Version uint32
}

func writeHeader(w io.Writer, magic string) error {
	h := header{Version: ir.PlanFormatVersion}
	copy(h.Magic[:], magic)
	return binary.Write(w, binary.LittleEndian, h)
}

func readHeader(r io.Reader, magic string) error {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return err
	}
	if string(h.Magic[:]) != magic {
		return fmt.Errorf("%w: magic %q, want %q", ErrFormat, h.Magic[:], magic)
	}
	if h.Version != ir.PlanFormatVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrFormat, h.Version, ir.PlanFormatVersion)
	}
	return nil
}

func writeRegions(w io.Writer, plan *ir.Plan) error {
	if err := writeHeader(w, regionMagic); err != nil {
		return err
	}
	rank := plan.Rank()
	meta := struct {
		Rank  uint32
		Color int64
		Count uint64
	}{uint32(rank), int64(plan.Color), uint64(len(plan.Regions))}
	if err := binary.Write(w, binary.LittleEndian, meta); err != nil {
		return err
	}
	rec := make([]int64, 3+4*rank)
	for _, r := range plan.Regions {
		rec[0], rec[1], rec[2] = int64(r.Index), int64(r.T0), int64(r.T1)
		for i, axis := range [][]int{r.Grid.X0, r.Grid.X1, r.Grid.DX0, r.Grid.DX1} {
			for a, v := range axis {
				rec[3+i*rank+a] = int64(v)
			}
		}
		if err := binary.Write(w, binary.LittleEndian, rec); err != nil {
			return err
		}
	}
	return nil
}

// checkCount rejects a header count whose records cannot fit in the bytes
// left after the header of a file of the given size.
func checkCount(count uint64, recordBytes, headerBytes, size int64, what string) error {
	remaining := size - headerBytes
	if remaining < 0 || count > uint64(remaining)/uint64(recordBytes) {
		return fmt.Errorf("%w: %d %s in a %d-byte file", ErrFormat, count, what, size)
	}
	return nil
}

func readRegions(r io.Reader, size int64, plan *ir.Plan) (int64, error) {
	if err := readHeader(r, regionMagic); err != nil {
		return 0, err
	}
	var meta struct {
		Rank  uint32
		Color int64
		Count uint64
	}
	if err := binary.Read(r, binary.LittleEndian, &meta); err != nil {
		return 0, err
	}
	if meta.Count > 0 && (meta.Rank == 0 || meta.Rank > ir.MaxRank) {
		return 0, fmt.Errorf("%w: rank %d", ErrFormat, meta.Rank)
	}
	rank := int(meta.Rank)
	rec := make([]int64, 3+4*rank)
	headerBytes := int64(binary.Size(header{}) + binary.Size(meta))
	if err := checkCount(meta.Count, int64(binary.Size(rec)), headerBytes, size, "regions"); err != nil {
		return 0, err
	}
	plan.Regions = make([]ir.Region, meta.Count)
	for n := range plan.Regions {
		if err := binary.Read(r, binary.LittleEndian, rec); err != nil {
			return 0, err
		}
		g := ir.NewGrid(rank)
		for i, axis := range [][]int{g.X0, g.X1, g.DX0, g.DX1} {
			for a := range axis {
				axis[a] = int(rec[3+i*rank+a])
			}
		}
		plan.Regions[n] = ir.Region{Index: int(rec[0]), T0: int(rec[1]), T1: int(rec[2]), Grid: g}
	}
	return meta.Color, nil
}

func writeSync(w io.Writer, plan *ir.Plan) error {
	if err := writeHeader(w, syncMagic); err != nil {
		return err
	}
	meta := struct {
		Color int64
		Count uint64
	}{int64(plan.Color), uint64(len(plan.Sync))}
	if err := binary.Write(w, binary.LittleEndian, meta); err != nil {
		return err
	}
	offsets := make([]int64, len(plan.Sync))
	for i, v := range plan.Sync {
		offsets[i] = int64(v)
	}
	return binary.Write(w, binary.LittleEndian, offsets)
}

func readSync(r io.Reader, size int64, plan *ir.Plan) (int64, error) {
	if err := readHeader(r, syncMagic); err != nil {
		return 0, err
	}
	var meta struct {
		Color int64
		Count uint64
	}
	if err := binary.Read(r, binary.LittleEndian, &meta); err != nil {
		return 0, err
	}
	if meta.Count == 0 {
		return 0, fmt.Errorf("%w: empty sync vector", ErrFormat)
	}
	headerBytes := int64(binary.Size(header{}) + binary.Size(meta))
	if err := checkCount(meta.Count, 8, headerBytes, size, "sync entries"); err != nil {
		return 0, err
	}
	offsets := make([]int64, meta.Count)
	if err := binary.Read(r, binary.LittleEndian, offsets); err != nil {
		return 0, err
	}
	plan.Sync = make([]int, len(offsets))
	for i, v := range offsets {
		plan.Sync[i] = int(v)
	}
	return meta.Color, nil
}
