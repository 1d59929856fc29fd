package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/gamedex/internal/domain"
)

// parseIDs parses a comma separated list of positive game ids
func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid game id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no game ids given")
	}
	return ids, nil
}

// buildCommands turns ids into collection commands for action
func buildCommands(action string, ids []int64) ([]domain.CollectionCommand, error) {
	commands := make([]domain.CollectionCommand, 0, len(ids))
	for _, id := range ids {
		cmd := domain.CollectionCommand{Action: action, GameID: id}
		if err := cmd.Validate(); err != nil {
			return nil, fmt.Errorf("command %s %d: %w", action, id, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "collection-commands", "Kafka topic")
	action := flag.String("action", domain.CommandAdd, "Command action: add or remove")
	idList := flag.String("ids", "", "Game ids (comma-separated)")
	interval := flag.Duration("interval", 0, "Delay between commands")
	flag.Parse()

	ids, err := parseIDs(*idList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	commands, err := buildCommands(*action, ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Printf("Brokers:  %s\n", *brokers)
	fmt.Printf("Topic:    %s\n", *topic)
	fmt.Printf("Commands: %d x %s\n\n", len(commands), *action)

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	for i, cmd := range commands {
		data, err := json.Marshal(cmd)
		if err != nil {
			log.Printf("Failed to marshal command: %v", err)
			continue
		}

		// key by game id so commands for one game keep their order
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(strconv.FormatInt(cmd.GameID, 10)),
			Value: sarama.ByteEncoder(data),
		}
		fmt.Printf("  queued %s %d\n", cmd.Action, cmd.GameID)

		if *interval > 0 && i < len(commands)-1 {
			time.Sleep(*interval)
		}
	}

	producer.AsyncClose()
	wg.Wait()
	fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))

	if atomic.LoadInt64(&errorCount) > 0 {
		os.Exit(1)
	}
}
