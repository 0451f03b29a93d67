package main

import (
	"fmt"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-bcache/addr"
	"github.com/mit-pdos/go-bcache/alloc"
	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/disk"
	"github.com/mit-pdos/go-bcache/mkfs"
	"github.com/mit-pdos/go-bcache/super"
	"github.com/mit-pdos/go-bcache/volume"
	"github.com/mit-pdos/go-bcache/wal"
)

type logRow struct {
	Index   uint64 `csv:"index"`
	Blockno uint64 `csv:"blockno"`
}

func imageArg(c *cli.Context, nargs int) (string, error) {
	if c.NArg() != nargs {
		return "", errors.Errorf("%s: expected %d arguments, got %d",
			c.Command.Name, nargs, c.NArg())
	}
	return c.Args().First(), nil
}

func mkfsImage(c *cli.Context) error {
	path, err := imageArg(c, 1)
	if err != nil {
		return err
	}
	p := mkfs.Params{
		Nblocks:    c.Uint64("blocks"),
		LogStart:   common.LOGSTART,
		LogNblocks: c.Uint64("log-blocks"),
		Bitmap:     !c.Bool("no-bitmap"),
	}
	d, err := disk.NewFileDisk(path, p.Nblocks)
	if err != nil {
		return err
	}
	if err := mkfs.Format(d, p); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

func inspectImage(c *cli.Context) error {
	path, err := imageArg(c, 1)
	if err != nil {
		return err
	}
	d, err := disk.OpenFileDisk(path)
	if err != nil {
		return err
	}
	defer d.Close()

	bc := bcache.MkCache(d, bcache.DefaultConfig())
	sb, err := super.Decode(bc.Block(bc.AddrOf(common.SUPERBLK)))
	if err != nil {
		return err
	}
	bc.SetBound(sb.Nblocks)
	n, blknos := wal.PeekHeader(bc, sb.LogStart)

	w := c.App.Writer
	if c.Bool("csv") {
		rows := make([]*logRow, 0, n)
		for i, bn := range blknos {
			rows = append(rows, &logRow{Index: uint64(i), Blockno: bn})
		}
		return gocsv.Marshal(&rows, w)
	}

	fmt.Fprintf(w, "blocks: %d\n", sb.Nblocks)
	fmt.Fprintf(w, "log: header %d, %d entries, %d buffered\n", sb.LogStart, sb.LogNblocks, n)
	for i, bn := range blknos {
		fmt.Fprintf(w, "  entry %d: block %d\n", i, bn)
	}
	if sb.BitmapStart != 0 {
		a := alloc.MkAlloc(bc, sb.BitmapStart, sb.Nblocks)
		fmt.Fprintf(w, "bitmap: block %d, %d free\n", sb.BitmapStart, a.NumFree())
	}
	fmt.Fprintf(w, "data start: %d\n", sb.DataStart())
	return nil
}

// pending returns how many blocks the log on d holds, without replaying it.
func pending(d disk.Disk) (uint64, error) {
	bc := bcache.MkCache(d, bcache.DefaultConfig())
	sb, err := super.Decode(bc.Block(bc.AddrOf(common.SUPERBLK)))
	if err != nil {
		return 0, err
	}
	n, _ := wal.PeekHeader(bc, sb.LogStart)
	return n, nil
}

func recoverImage(c *cli.Context) error {
	path, err := imageArg(c, 1)
	if err != nil {
		return err
	}
	d, err := disk.OpenFileDisk(path)
	if err != nil {
		return err
	}
	n, err := pending(d)
	if err != nil {
		d.Close()
		return err
	}
	v, err := volume.Mount(d, volume.DefaultConfig())
	if err != nil {
		d.Close()
		return err
	}
	fmt.Fprintf(c.App.Writer, "recovered %d blocks\n", n)
	return v.Unmount()
}

// markUsed allocates bn in its own operation if the bitmap has it free, so
// that the write can load it.
func markUsed(v *volume.Volume, bn common.Bnum) error {
	a := v.Alloc()
	if a == nil || !a.IsFree(bn) {
		return nil
	}
	op := v.Begin()
	a.MarkUsed(op, bn)
	if !op.Commit() {
		return errors.Errorf("write: allocating block %d does not fit in the log", bn)
	}
	return nil
}

func writeImage(c *cli.Context) error {
	path, err := imageArg(c, 2)
	if err != nil {
		return err
	}
	data := []byte(c.Args().Get(1))
	bn, off := c.Uint64("block"), c.Uint64("offset")
	if off+uint64(len(data)) > common.BlockSize {
		return errors.Errorf("write: %d bytes at offset %d cross the block end", len(data), off)
	}

	d, err := disk.OpenFileDisk(path)
	if err != nil {
		return err
	}
	v, err := volume.Mount(d, volume.DefaultConfig())
	if err != nil {
		d.Close()
		return err
	}
	sb := v.Super()
	if bn < sb.DataStart() || bn >= sb.Nblocks {
		v.Unmount()
		return errors.Errorf("write: block %d not in data region [%d, %d)",
			bn, sb.DataStart(), sb.Nblocks)
	}

	if err := markUsed(v, bn); err != nil {
		v.Unmount()
		return err
	}
	op := v.Begin()
	op.OverWrite(addr.MkAddr(bn, off), data)
	if !op.Commit() {
		v.Unmount()
		return errors.New("write: operation does not fit in the log")
	}
	return v.Unmount()
}
