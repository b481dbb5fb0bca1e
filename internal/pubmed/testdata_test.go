// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

const sampleMedline = `<?xml version="1.0" ?>
<!DOCTYPE PubmedArticleSet PUBLIC "-//NLM//DTD PubMedArticle, 1st January 2024//EN" "https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_240101.dtd">
<PubmedArticleSet>
<PubmedArticle>
  <MedlineCitation Status="MEDLINE" Owner="NLM">
    <PMID Version="1">26666782</PMID>
    <Article PubModel="Print-Electronic">
      <Journal>
        <JournalIssue CitedMedium="Internet">
          <PubDate><Year>2016</Year><Month>Mar</Month></PubDate>
        </JournalIssue>
        <Title>NeuroImage</Title>
      </Journal>
      <ArticleTitle>Face processing in the <i>fusiform</i> gyrus.</ArticleTitle>
      <Abstract>
        <AbstractText Label="BACKGROUND">Faces are special.</AbstractText>
        <AbstractText Label="RESULTS">The FFA responds to faces.</AbstractText>
      </Abstract>
      <AuthorList CompleteYN="Y">
        <Author><LastName>Smith</LastName><ForeName>Jane</ForeName></Author>
        <Author><LastName>Doe</LastName><ForeName>John A</ForeName></Author>
        <Author><CollectiveName>Imaging Consortium</CollectiveName></Author>
      </AuthorList>
      <ArticleDate DateType="Electronic"><Year>2015</Year><Month>12</Month></ArticleDate>
    </Article>
    <MeshHeadingList>
      <MeshHeading><DescriptorName UI="D006801">Humans</DescriptorName></MeshHeading>
      <MeshHeading><DescriptorName UI="D008279">Magnetic Resonance Imaging</DescriptorName></MeshHeading>
    </MeshHeadingList>
    <KeywordList Owner="NOTNLM"><Keyword>fMRI</Keyword><Keyword>faces</Keyword></KeywordList>
  </MedlineCitation>
  <PubmedData>
    <ArticleIdList>
      <ArticleId IdType="pubmed">26666782</ArticleId>
      <ArticleId IdType="pii">S1053-8119(15)01100-1</ArticleId>
      <ArticleId IdType="doi">10.1016/j.neuroimage.2015.12.001</ArticleId>
    </ArticleIdList>
  </PubmedData>
</PubmedArticle>
</PubmedArticleSet>`

const sampleESearch = `<?xml version="1.0" encoding="UTF-8" ?>
<!DOCTYPE eSearchResult PUBLIC "-//NLM//DTD esearch 20060628//EN" "https://eutils.ncbi.nlm.nih.gov/eutils/dtd/20060628/esearch.dtd">
<eSearchResult><Count>3</Count><RetMax>3</RetMax><RetStart>0</RetStart>
<IdList><Id>300</Id><Id>100</Id><Id>200</Id></IdList>
</eSearchResult>`
