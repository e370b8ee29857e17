package cushion_test

import (
	"fmt"
	"os"

	"github.com/mikehall314/cushion"
)

func Example() {
	dir, err := os.MkdirTemp(os.TempDir(), "cushion")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	db, err := cushion.Open(cushion.Options{Dir: dir})
	if err != nil {
		panic(err)
	}
	defer db.Close()

	err = db.DefineView(cushion.View{
		Name:   "by-name",
		Source: "emit doc.name for users",
		Map: func(doc cushion.Document, em cushion.Emitter) {
			if doc["type"] == "user" {
				em.Emit(doc["name"], nil)
			}
		},
	})
	if err != nil {
		panic(err)
	}

	for _, u := range []cushion.Document{
		{"_id": "alice", "type": "user", "name": "Alice"},
		{"_id": "bob", "type": "user", "name": "Bob"},
		{"_id": "cfg", "type": "config"},
	} {
		if _, err := db.Insert(u); err != nil {
			panic(err)
		}
	}

	rows, err := db.Query(cushion.For("by-name"))
	if err != nil {
		panic(err)
	}
	for _, r := range rows {
		fmt.Println(r.Key[0], r.ID)
	}

	// Output:
	// Alice alice
	// Bob bob
}

func Example_pagination() {
	dir, err := os.MkdirTemp(os.TempDir(), "cushion")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	db, err := cushion.Open(cushion.Options{Dir: dir})
	if err != nil {
		panic(err)
	}
	defer db.Close()

	err = db.DefineView(cushion.View{
		Name:   "numbers",
		Source: "emit doc.n",
		Map: func(doc cushion.Document, em cushion.Emitter) {
			em.Emit(doc["n"], nil)
		},
	})
	if err != nil {
		panic(err)
	}

	for i := 1; i <= 5; i++ {
		if _, err := db.Insert(cushion.Document{"_id": fmt.Sprintf("d%d", i), "n": i}); err != nil {
			panic(err)
		}
	}

	rows, err := db.Query(cushion.For("numbers").Skip(1).Limit(2))
	if err != nil {
		panic(err)
	}
	for _, r := range rows {
		fmt.Println(r.Key[0])
	}

	// Output:
	// 2
	// 3
}
