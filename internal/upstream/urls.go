package upstream

import "fmt"

// Image URLs embed the hashed API key, never the key itself. The server
// fetches the bytes lazily when it refreshes image metadata.

func CollectionImageURL(baseURL, posterRef, keyHash string) string {
	return fmt.Sprintf("%s/images/collection/%s/%s", baseURL, posterRef, keyHash)
}

func LibraryImageURL(baseURL, posterRef, keyHash string) string {
	return fmt.Sprintf("%s/images/library/%s/%s", baseURL, posterRef, keyHash)
}
