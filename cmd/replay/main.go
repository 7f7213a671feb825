package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tradesim/matchbook/pkg/logging"
	"github.com/tradesim/matchbook/pkg/orderbook"
)

func main() {
	eventsFile := flag.String("events", "book_events.csv", "event log to replay")
	symbol := flag.String("symbol", "SIM", "book symbol")
	mode := flag.String("mode", "instant", "replay mode: instant, timed, step")
	speed := flag.Float64("speed", 1.0, "speed multiplier for timed mode")
	flag.Parse()

	logger := logging.NewLogger(logging.INFO)
	defer logger.Sync() //nolint:errcheck
	sugar := logger.Sugar()

	engine := orderbook.NewReplayEngine(*symbol)
	engine.SetLogger(sugar)

	if err := engine.LoadFromFile(*eventsFile); err != nil {
		sugar.Fatalw("load events", "path", *eventsFile, "error", err)
	}

	switch *mode {
	case "instant":
		engine.ReplayInstant()
	case "timed":
		engine.ReplayTimed(*speed)
	case "step":
		runStepMode(engine, sugar)
	default:
		sugar.Fatalw("unknown mode", "mode", *mode)
	}

	engine.Book().PrintBookSummary(os.Stdout)
	engine.Book().PrintFills(os.Stdout)
}

// runStepMode drives the replay interactively: ENTER for one event, `n <k>`
// for a batch, `j <k>` to jump, `p` to print the book, `r` to rewind, `q` to
// quit.
func runStepMode(engine *orderbook.ReplayEngine, sugar *zap.SugaredLogger) {
	scanner := bufio.NewScanner(os.Stdin)

	for engine.HasNext() {
		event, _ := engine.PeekNext()
		fmt.Printf("\n[%d/%d] %s\n> ", engine.CurrentIndex()+1, engine.TotalEvents(), event)

		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())

		switch {
		case input == "":
			step(engine, sugar)
			engine.Book().PrintTopOfBook(os.Stdout)
		case input == "q" || input == "quit":
			fmt.Printf("Replay stopped at event %d\n", engine.CurrentIndex())
			return
		case input == "p" || input == "print":
			engine.Book().PrintMarketDepth(os.Stdout, 5)
		case input == "r" || input == "reset":
			engine.Reset()
			fmt.Println("Reset to beginning")
		case strings.HasPrefix(input, "n "):
			if n, err := strconv.Atoi(strings.TrimSpace(input[2:])); err == nil {
				_ = engine.ReplayN(n)
				engine.Book().PrintTopOfBook(os.Stdout)
			}
		case strings.HasPrefix(input, "j "):
			if target, err := strconv.Atoi(strings.TrimSpace(input[2:])); err == nil {
				if err := engine.SkipTo(target - 1); err != nil {
					fmt.Println("Invalid event number")
				} else {
					fmt.Printf("Jumped to event %d\n", engine.CurrentIndex()+1)
				}
			}
		default:
			fmt.Println("Commands: ENTER=next, n <k>, j <k>, p, r, q")
		}
	}
}

func step(engine *orderbook.ReplayEngine, sugar *zap.SugaredLogger) {
	if err := engine.ReplayNext(); err != nil {
		sugar.Warnw("replay step", "error", err)
	}
}
