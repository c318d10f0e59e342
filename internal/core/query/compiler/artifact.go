package compiler

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Statement is a compiled SQL statement with bound arguments.
type Statement struct {
	SQL  string
	Args []any
	// Skipped lists the indexes of batch records left out of an insert
	// because their keys differ from the first record.
	Skipped []int
}

// String renders the statement with its arguments inlined. The result is
// meant for logs and dry-run output; execution always uses SQL and Args.
func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.SQL
	}

	var sb strings.Builder
	arg := 0
	inQuote := false
	for i := 0; i < len(s.SQL); i++ {
		ch := s.SQL[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			sb.WriteByte(ch)
		case ch == '?' && !inQuote && arg < len(s.Args):
			sb.WriteString(Literal(s.Args[arg]))
			arg++
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// Literal renders v as a MySQL literal.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(val)
	case []byte:
		return quoteString(string(val))
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return quoteString(val.Format("2006-01-02 15:04:05"))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	}
	return quoteString(fmt.Sprint(v))
}

func quoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// CommandKind is the kind of document store command.
type CommandKind string

const (
	// AggregateCommand runs an aggregation pipeline.
	AggregateCommand CommandKind = "aggregate"
	// InsertCommand inserts documents.
	InsertCommand CommandKind = "insert"
	// UpdateCommand updates matching documents.
	UpdateCommand CommandKind = "update"
	// DeleteCommand deletes matching documents.
	DeleteCommand CommandKind = "delete"
)

// Command is a compiled document store operation.
type Command struct {
	Kind       CommandKind
	Database   string
	Collection string
	Pipeline   mongo.Pipeline
	Documents  []any
	Filter     bson.D
	Update     bson.D
	// Multi applies updates and deletes to every matching document.
	Multi bool
}

// Namespace returns "database.collection".
func (c Command) Namespace() string {
	return c.Database + "." + c.Collection
}

// Document returns the command in its wire-like document form.
func (c Command) Document() bson.D {
	doc := bson.D{{Key: string(c.Kind), Value: c.Collection}}
	switch c.Kind {
	case AggregateCommand:
		stages := bson.A{}
		for _, stage := range c.Pipeline {
			stages = append(stages, stage)
		}
		doc = append(doc, bson.E{Key: "pipeline", Value: stages})
	case InsertCommand:
		doc = append(doc, bson.E{Key: "documents", Value: bson.A(c.Documents)})
	case UpdateCommand:
		doc = append(doc,
			bson.E{Key: "filter", Value: c.Filter},
			bson.E{Key: "update", Value: c.Update},
			bson.E{Key: "multi", Value: c.Multi},
		)
	case DeleteCommand:
		doc = append(doc,
			bson.E{Key: "filter", Value: c.Filter},
			bson.E{Key: "multi", Value: c.Multi},
		)
	}
	return doc
}

// String renders the command as relaxed extended JSON.
func (c Command) String() string {
	out, err := bson.MarshalExtJSON(c.Document(), false, false)
	if err != nil {
		return fmt.Sprintf("%s %s: %v", c.Kind, c.Namespace(), err)
	}
	return string(out)
}
