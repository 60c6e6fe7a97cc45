// Command blogserver serves a directory of static files and a single JSON
// document holding all blog posts.
//
// GET / serves index.html from the root directory, and GET /name serves the
// file name under it; anything absent is 404. GET /blog_posts.json returns the
// posts document, or {} if nothing was saved yet. POST /save_posts replaces
// the document with the request body and answers "Posts saved successfully";
// on failure it answers 500 with the error message in the body.
//
// Unless open_writes is set, saves must carry the admin password as the
// document's top-level "password" member, which is dropped before storing;
// a wrong password gets 401. POST /verify_password with {"password": "..."}
// answers {"success": true}, or {"success": false} with 401.
//
// The admin password comes from $ADMIN_PASSWORD, else from the configuration
// file's admin_password, else it falls back to a well-known default.
package main // import "github.com/nicolagi/blogd/cmd/blogserver"
