// Inspection tool for trellis container files.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/trellis-data/trellis/trellis"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: inspect <file.trl> [object-path]")
		os.Exit(1)
	}

	s, err := trellis.Open(os.Args[1])
	if err != nil {
		fmt.Printf("ERROR: failed to open container: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if len(os.Args) > 2 {
		inspectObject(s, os.Args[2])
		return
	}

	err = s.Walk(func(path string, kind trellis.Kind) error {
		depth := strings.Count(path, "/")
		if path == "/" {
			depth = 0
		}
		indent := strings.Repeat("  ", depth)

		switch kind {
		case trellis.KindGroup:
			g, err := s.OpenGroup(path)
			if err != nil {
				return err
			}
			if t, terr := s.OpenTable(path); terr == nil {
				fmt.Printf("%stable %q: %d rows, columns %v\n", indent, path, t.NumRows(), t.Columns())
			} else {
				fmt.Printf("%sgroup %q: attrs %v\n", indent, path, g.Attrs())
			}

		case trellis.KindDataset:
			ds, err := s.OpenDataset(path)
			if err != nil {
				return err
			}
			shape, err := ds.Shape()
			if err != nil {
				return err
			}
			fmt.Printf("%sdataset %q: %s %v, attrs %v\n", indent, path, ds.Tag(), shape, ds.Attrs())
		}
		return nil
	})
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func inspectObject(s *trellis.Session, path string) {
	if t, err := s.OpenTable(path); err == nil {
		out, err := t.TabularJSON()
		if err != nil {
			fmt.Printf("ERROR: rendering table: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	ds, err := s.OpenDataset(path)
	if err != nil {
		fmt.Printf("ERROR: %q is neither a table nor a dataset: %v\n", path, err)
		os.Exit(1)
	}
	shape, err := ds.Shape()
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("dataset %q: %s %v\n", path, ds.Tag(), shape)

	var all any
	if err := ds.View().ReadAll(&all); err != nil {
		fmt.Printf("ERROR: reading data: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("data: %v\n", all)
}
