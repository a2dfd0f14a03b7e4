// Command mp4seek cuts an MP4 at a sync point, lists sync points, or
// moves a file's header to the front for progressive playback.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	mf "github.com/ylatuya/mp4seek"
)

func main() {
	out := flag.String("o", "", "output path (default <file>.cut.mp4, or <file>.faststart.mp4 with -faststart)")
	faststart := flag.Bool("faststart", false, "move the movie header to the front instead of cutting")
	dump := flag.Bool("dump", false, "print the top-level boxes and exit")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-o path] [-faststart] [-dump] <file> [<time_seconds>]\n", os.Args[0])
		os.Exit(1)
	}

	if err := run(args, *out, *faststart, *dump); err != nil {
		fmt.Fprintln(os.Stderr, "mp4seek:", err)
		os.Exit(1)
	}
}

func run(args []string, out string, faststart, dump bool) error {
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if dump {
		return dumpTree(f)
	}

	if faststart {
		dst := out
		if dst == "" {
			dst = path + ".faststart.mp4"
		}
		w, err := os.Create(dst)
		if err != nil {
			return err
		}
		defer w.Close()
		moved, err := mf.MoveHeaderAndWrite(context.Background(), f, w)
		if err != nil {
			return err
		}
		if !moved {
			fmt.Fprintln(os.Stderr, "mp4seek: header already at front")
		}
		return nil
	}

	if len(args) < 2 {
		points, err := mf.GetSyncPoints(f)
		if err != nil {
			return err
		}
		for _, p := range points {
			fmt.Println(p)
		}
		return nil
	}

	t, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid time %q: %w", args[1], err)
	}

	dst := out
	if dst == "" {
		dst = path + ".cut.mp4"
	}
	w, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer w.Close()

	return mf.SplitAndWrite(context.Background(), f, w, t)
}

func dumpTree(f *os.File) error {
	sc := mf.NewScanner(f)
	for sc.Next() {
		e := sc.Entry()
		fmt.Printf("[%s] size=%d offset=%d\n", e.Type, e.Size, e.Offset)
	}
	return sc.Err()
}
