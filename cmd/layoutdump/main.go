// Command layoutdump runs layout detection on one page image and prints the
// lanes, corridors and cell boxes it finds.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"stele-slicer/internal/config"
	"stele-slicer/internal/ink"
	"stele-slicer/internal/layout"
	"stele-slicer/internal/page"
)

func main() {
	path := flag.String("i", "", "Path to the page image")
	dirName := flag.String("d", "vertical-rtl", "Reading direction (vertical-rtl or horizontal-ltr)")
	polarity := flag.String("polarity", "auto", "Ink polarity (auto, dark-ink, light-ink)")
	lanes := flag.Int("lanes", 0, "Expected lane count (0 detects freely)")
	counts := flag.String("counts", "", "Comma-separated cells per lane; prints cell boxes when set")
	flag.Parse()

	if *path == "" {
		fmt.Println("Usage: layoutdump -i <image> [-d vertical-rtl] [-lanes N] [-counts 10,10,9]")
		os.Exit(1)
	}
	dir, err := layout.ParseDirection(*dirName)
	if err != nil {
		fail(err)
	}
	pol, err := page.ParsePolarity(*polarity)
	if err != nil {
		fail(err)
	}
	var perLane []int
	if *counts != "" {
		for _, s := range strings.Split(*counts, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				fail(fmt.Errorf("bad lane count %q", s))
			}
			perLane = append(perLane, n)
		}
		if *lanes == 0 {
			*lanes = len(perLane)
		}
	}

	pg, err := page.Load(*path, pol)
	if err != nil {
		fail(err)
	}
	b := pg.Gray.Bounds()
	masks, level := ink.Masks(pg.Gray, ink.Otsu{}, config.DefaultStrictOffset, config.DefaultLooseOffset)
	fmt.Printf("=== %s ===\n", *path)
	fmt.Printf("  size %dx%d  inverted=%v  otsu=%d\n", b.Dx(), b.Dy(), pg.Inverted, level)

	p := layout.DefaultParams()
	l := layout.Detect(masks.Strict, dir, *lanes, p)
	fmt.Printf("\n=== Layout (%s) ===\n", l.Status)
	fmt.Printf("  block %d..%d, %d lanes\n", l.Block.Lo, l.Block.Hi, len(l.Lanes))
	for _, ln := range l.Lanes {
		fmt.Printf("  lane %2d: span %4d..%-4d corridor %4d..%-4d\n",
			ln.Index, ln.Span.Lo, ln.Span.Hi, ln.Corridor.Lo, ln.Corridor.Hi)
	}
	for _, c := range l.Conflicts {
		fmt.Printf("  conflict: %s: %s\n", c.Code, c.Message)
	}

	if len(perLane) == 0 {
		return
	}
	cells, conflicts := l.Cells(perLane, p)
	fmt.Printf("\n=== Cells (%d) ===\n", len(cells))
	for _, c := range cells {
		fmt.Printf("  [%d,%2d] %v  safe row %v  %s\n", c.Lane, c.Position, c.Box, c.SafeRow, c.Split)
	}
	for _, c := range conflicts {
		fmt.Printf("  conflict: %s: %s\n", c.Code, c.Message)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "layoutdump: %v\n", err)
	os.Exit(1)
}
