// Copyright 2024 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This tool replays structured build log files and prints their events,
// resolving the interned ids back to strings. Given a directory it merges
// every log file in it chronologically.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"android/cxxmeta/structlog"
	"android/cxxmeta/symbols"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-type <name>] <logdir or logfile>\n", os.Args[0])
		flag.PrintDefaults()
	}
	typeName := flag.String("type", "", "Only print events of this payload type")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)
	reg := structlog.DefaultRegistry()

	info, err := os.Stat(path)
	if err != nil {
		log.Fatalf("Error opening %q: %v", path, err)
	}

	if info.IsDir() {
		if *typeName == "" {
			log.Fatal("-type is required when replaying a log directory")
		}
		lines, err := structlog.Replay(path, *typeName, reg,
			func(table *symbols.Table, event structlog.Event) (string, bool) {
				return format(table, &event), true
			})
		if err != nil {
			log.Fatalf("Failed to replay %q: %v", path, err)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return
	}

	d, err := structlog.NewDecoder(path, reg)
	if err != nil {
		log.Fatalf("Error opening %q: %v", path, err)
	}
	defer d.Close()
	for {
		event, err := d.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Fatalf("Failed to decode %q: %v", path, err)
		}
		if *typeName != "" && event.TypeName != *typeName {
			continue
		}
		fmt.Println(format(d.Table(), event))
	}
}

func format(table *symbols.Table, event *structlog.Event) string {
	stamp := time.UnixMilli(event.TimestampMS).UTC().Format("2006-01-02 15:04:05.000")

	str := func(id symbols.ID) string {
		if s, err := table.Decode(id); err == nil {
			return s
		}
		return fmt.Sprintf("<id %d>", id)
	}

	switch p := event.Payload.(type) {
	case *structlog.BuildStepEvent:
		return fmt.Sprintf("%s %s output=%s rule=%s duration=%dms",
			stamp, event.TypeName, str(p.OutputID), str(p.RuleID), p.DurationMS)
	case *structlog.CacheQueryEvent:
		return fmt.Sprintf("%s %s key=%s hit=%v",
			stamp, event.TypeName, str(p.KeyID), p.Hit)
	case *structlog.UnknownPayload:
		return fmt.Sprintf("%s %s (%d bytes, no decoder)",
			stamp, event.TypeName, p.Size)
	default:
		return fmt.Sprintf("%s %s %+v", stamp, event.TypeName, event.Payload)
	}
}
