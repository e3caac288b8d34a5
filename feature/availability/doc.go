// Package availability folds a record's holdings and items into the
// availability summary stored on the search document.
//
// The summary is serialized sparsely: absent, false and empty fields are
// omitted and consumers branch on their presence.
package availability
