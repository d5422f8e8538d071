package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/javajack/sheetcalc"
)

func main() {
	args := os.Args[1:]
	sub := "repl"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "repl":
		os.Exit(replCommand(args))
	case "serve":
		os.Exit(serveCommand(args))
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: sheetcalc [repl|serve] [flags]

  repl            interactive session on stdin (default)
  serve -addr :8080   websocket live view`)
}

func serveCommand(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "listen address")
	fs.Parse(args)

	logger := logrus.New()
	srv := sheetcalc.NewServer(sheetcalc.NewSheet(),
		sheetcalc.WithAddr(*addr),
		sheetcalc.WithLogger(logger),
	)
	if err := srv.ListenAndServe(); err != nil {
		logger.WithError(err).Error("server stopped")
		return 1
	}
	return 0
}

func replCommand(args []string) int {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	fs.Parse(args)

	sheet := sheetcalc.NewSheet()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("sheetcalc repl. commands: set <cell> <text>, clear <cell>, values, texts, size, quit")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := execute(sheet, line); err != nil {
			if err == errQuit {
				break
			}
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	return 0
}

var errQuit = fmt.Errorf("quit")

func execute(sheet *sheetcalc.Sheet, line string) error {
	fields := strings.SplitN(line, " ", 3)
	switch fields[0] {
	case "quit", "exit":
		return errQuit
	case "values":
		return sheet.PrintValues(os.Stdout)
	case "texts":
		return sheet.PrintTexts(os.Stdout)
	case "size":
		fmt.Println(sheet.GetPrintableSize())
		return nil
	case "set":
		if len(fields) < 2 {
			return fmt.Errorf("usage: set <cell> <text>")
		}
		pos, err := sheetcalc.ParsePosition(fields[1])
		if err != nil {
			return err
		}
		text := ""
		if len(fields) == 3 {
			text = fields[2]
		}
		return sheet.SetCell(pos, text)
	case "clear":
		if len(fields) != 2 {
			return fmt.Errorf("usage: clear <cell>")
		}
		pos, err := sheetcalc.ParsePosition(fields[1])
		if err != nil {
			return err
		}
		return sheet.ClearCell(pos)
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <cell>")
		}
		pos, err := sheetcalc.ParsePosition(fields[1])
		if err != nil {
			return err
		}
		cell, err := sheet.GetCell(pos)
		if err != nil {
			return err
		}
		if cell == nil {
			fmt.Println("(unset)")
			return nil
		}
		fmt.Printf("%s = %s\n", cell.GetText(), sheetcalc.FormatValue(cell.GetValue()))
		return nil
	}
	return fmt.Errorf("unknown command %q", fields[0])
}
