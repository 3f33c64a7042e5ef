/*
 * MIT License
 *
 * Copyright (c) 2023 EASL and the vHive community
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */


package generator

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ReadInvocationCounts parses an Azure Functions invocation trace (HashOwner, HashApp, HashFunction,
// Trigger, then one column per minute) and keeps at most the first minutes columns. Functions are
// named after their HashFunction.
func ReadInvocationCounts(path string, minutes int) ([]FunctionCounts, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseInvocationCounts(file, minutes)
}

func parseInvocationCounts(r io.Reader, minutes int) ([]FunctionCounts, error) {
	if minutes < 1 {
		return nil, fmt.Errorf("trace duration must be at least one minute, got %d", minutes)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read invocation trace header: %w", err)
	}

	hashFunctionIndex, invocationColumnIndex := -1, -1
	for i := 0; i < len(header) && i < 4; i++ {
		switch strings.ToLower(header[i]) {
		case "hashfunction":
			hashFunctionIndex = i
		case "trigger":
			invocationColumnIndex = i + 1
		}
	}

	if hashFunctionIndex == -1 {
		return nil, fmt.Errorf("invocation trace does not contain a HashFunction column")
	}
	if invocationColumnIndex == -1 {
		invocationColumnIndex = 3
	}

	var result []FunctionCounts
	seen := make(map[string]int)

	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		name := record[hashFunctionIndex]
		if name == "" {
			return nil, fmt.Errorf("row %d: empty function hash", row)
		}

		// the same function hash may appear under several owners
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s-%d", name, n)
		} else {
			seen[name] = 1
		}

		counts := FunctionCounts{Name: name}
		for i := invocationColumnIndex; i < invocationColumnIndex+minutes && i < len(record); i++ {
			count, err := strconv.Atoi(strings.TrimSpace(record[i]))
			if err != nil {
				return nil, fmt.Errorf("row %d, minute %d: %w", row, i-invocationColumnIndex, err)
			}
			if count < 0 {
				return nil, fmt.Errorf("row %d, minute %d: negative invocation count", row, i-invocationColumnIndex)
			}

			counts.InvocationsPerMinute = append(counts.InvocationsPerMinute, count)
		}

		result = append(result, counts)
	}

	log.Debugf("Parsed %d functions from the invocation trace", len(result))

	return result, nil
}
