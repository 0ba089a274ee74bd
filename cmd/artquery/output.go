package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/huykn/query-cache/artworks"
	"github.com/huykn/query-cache/cache"
)

func printArtworks(w io.Writer, data []artworks.Artwork) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tARTIST\tDATE")
	for _, a := range data {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", a.ID, truncate(a.Title, 48), truncate(firstLine(a.ArtistDisplay), 32), a.DateDisplay)
	}
	tw.Flush()
}

func printDetails(w io.Writer, d *artworks.ArtworkDetails) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s\t%s\n", label, value)
		}
	}
	row("ID", fmt.Sprint(d.ID))
	row("Title", d.Title)
	row("Artist", firstLine(d.ArtistDisplay))
	row("Date", d.DateDisplay)
	row("Origin", d.PlaceOfOrigin)
	row("Medium", d.MediumDisplay)
	row("Dimensions", d.Dimensions)
	row("Credit", d.CreditLine)
	row("Reference", d.MainReferenceNumber)
	row("Styles", strings.Join(d.StyleIDs, ", "))
	row("Public domain", fmt.Sprint(d.IsPublicDomain))
	row("Image", d.ImageURL)
	tw.Flush()

	for _, section := range []struct {
		title      string
		paragraphs []string
	}{
		{"Publication history", d.PublicationHistory},
		{"Exhibition history", d.ExhibitionHistory},
	} {
		if len(section.paragraphs) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", section.title)
		for _, p := range section.paragraphs {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

func printStats(w io.Writer, took time.Duration, stats cache.Stats) {
	fmt.Fprintf(w, "\n%s (fetches %d, dedups %d, fresh hits %d, stale hits %d, errors %d)\n",
		took.Round(time.Millisecond), stats.Fetches, stats.Dedups, stats.FreshHits, stats.StaleHits, stats.Errors)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
