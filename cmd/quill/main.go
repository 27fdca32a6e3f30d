package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/quillreader/quill"
	"github.com/quillreader/quill/epubdoc"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Inspect e-book containers from the command line",
	Long: `quill opens EPUB-style containers and prints their metadata, plain
chapter text, or navigation outline, using the same pipeline the reader
device runs.`,
	SilenceUsage: true,
}

var infoCmd = &cobra.Command{
	Use:   "info BOOK",
	Short: "Print a book's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := quill.LoadMetadata(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Title:    %s\n", meta.Title)
		fmt.Printf("Author:   %s\n", meta.Author)
		fmt.Printf("Language: %s\n", meta.Language)
		fmt.Printf("Chapters: %d\n", meta.Chapters)
		return nil
	},
}

var textCmd = &cobra.Command{
	Use:   "text BOOK",
	Short: "Print a chapter's converted plain text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapter, _ := cmd.Flags().GetInt("chapter")

		var book *quill.Book
		var err error
		if chapter >= 0 {
			book, err = quill.OpenAt(args[0], chapter)
		} else {
			book, err = quill.Open(args[0])
		}
		if err != nil {
			return err
		}
		defer book.Close()

		n := book.TextLength()
		fmt.Fprintf(os.Stderr, "chapter %d of %d, %d bytes\n",
			book.CurrentChapter(), book.SpineLength(), n)
		fmt.Println(book.Text(0, n))
		return nil
	},
}

var tocCmd = &cobra.Command{
	Use:   "toc BOOK",
	Short: "Print a book's navigation outline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := quill.Open(args[0])
		if err != nil {
			return err
		}
		defer book.Close()

		toc := book.TableOfContents()
		if toc.Title != "" {
			fmt.Println(toc.Title)
		}
		printEntries(toc.Entries, 0)
		return nil
	},
}

func printEntries(entries []epubdoc.TOCEntry, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		if e.Href != "" {
			fmt.Printf("%s%s (%s)\n", indent, e.Title, e.Href)
		} else {
			fmt.Printf("%s%s\n", indent, e.Title)
		}
		printEntries(e.Children, depth+1)
	}
}

func init() {
	textCmd.Flags().IntP("chapter", "c", -1, "Chapter index to print (default: first content chapter)")
	rootCmd.AddCommand(infoCmd, textCmd, tocCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
