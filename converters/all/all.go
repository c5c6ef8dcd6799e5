package all

import (
	// Import all the converters so they register themselves
	_ "github.com/darianmavgo/streamcsv/converters/csv"
	_ "github.com/darianmavgo/streamcsv/converters/excel"
	_ "github.com/darianmavgo/streamcsv/converters/html"
	_ "github.com/darianmavgo/streamcsv/converters/json"
	_ "github.com/darianmavgo/streamcsv/converters/txt"
)
