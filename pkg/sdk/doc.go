// Package geodex embeds the geodex place search in a Go program, without the
// HTTP server in between. It talks to the same Redis or Elasticsearch index
// the server uses.
//
//	client, err := geodex.New(ctx, geodex.WithRedis("localhost:6379", ""))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	page, err := client.Autocomplete(ctx, "Dorotheenstraße 27 10117", geodex.AutocompleteOptions{Limit: 5})
//	for _, p := range page.Places {
//	    fmt.Println(p.Label, p.Lat, p.Lon)
//	}
//
// Reverse and Feature resolve coordinates and ids; EnsureIndex and Load seed
// the index from Document values.
package geodex
