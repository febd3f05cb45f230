// Package output renders command results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	Table Format = "table"
	JSON  Format = "json"
	YAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", Table:
		return Table, nil
	case JSON, YAML:
		return f, nil
	}
	return "", errors.Errorf("unsupported output format: %s (must be table, json or yaml)", s)
}

// Write renders data to w. Tables fall back to a generic layout of the
// struct fields when table is nil.
func Write(w io.Writer, f Format, data any, table func(io.Writer) error) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}

	if table != nil {
		return table(w)
	}
	return writeTable(w, data)
}

func writeTable(w io.Writer, data any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			fmt.Fprintln(tw, "No entries.")
			break
		}
		if elem := reflect.Indirect(v.Index(0)); elem.Kind() == reflect.Struct {
			t := elem.Type()
			headers := make([]string, t.NumField())
			for i := range headers {
				headers[i] = strings.ToUpper(t.Field(i).Name)
			}
			fmt.Fprintln(tw, strings.Join(headers, "\t"))

			for i := range v.Len() {
				row := reflect.Indirect(v.Index(i))
				vals := make([]string, row.NumField())
				for j := range vals {
					vals[j] = fmt.Sprint(row.Field(j).Interface())
				}
				fmt.Fprintln(tw, strings.Join(vals, "\t"))
			}
			break
		}
		for i := range v.Len() {
			fmt.Fprintln(tw, v.Index(i).Interface())
		}
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			fmt.Fprintf(tw, "%s:\t%v\n", t.Field(i).Name, v.Field(i).Interface())
		}
	default:
		fmt.Fprintln(tw, data)
	}

	return tw.Flush()
}
